// Package failure defines the error taxonomy shared by every caller of the
// resilience core and the classifier that decides how a failure is treated.
//
// A failure is either a structured *Error carrying a Code, or a generic
// exception (an *Exception, or any other Go error, which is treated as an
// exception named after its dynamic type). Classify maps both to a
// Classification.
package failure

// Severity drives the log level a failure is reported at.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category drives user-facing message selection in outer layers.
type Category string

const (
	CategoryUser     Category = "user"
	CategorySystem   Category = "system"
	CategoryNetwork  Category = "network"
	CategoryBusiness Category = "business"
)

// Classification describes how a single failure should be treated.
// A non-operational classification always has SeverityCritical.
type Classification struct {
	Operational bool     `json:"is_operational"`
	Retryable   bool     `json:"is_retryable"`
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
}

// Default is returned for unmapped codes and unrecognized inputs.
var Default = Classification{
	Operational: false,
	Retryable:   false,
	Severity:    SeverityCritical,
	Category:    CategorySystem,
}

var (
	networkClass    = Classification{Operational: true, Retryable: true, Severity: SeverityMedium, Category: CategoryNetwork}
	validationClass = Classification{Operational: true, Retryable: false, Severity: SeverityLow, Category: CategoryUser}
	defectClass     = Classification{Operational: false, Retryable: false, Severity: SeverityCritical, Category: CategorySystem}
	genericClass    = Classification{Operational: true, Retryable: false, Severity: SeverityMedium, Category: CategorySystem}
	canceledClass   = Classification{Operational: true, Retryable: false, Severity: SeverityLow, Category: CategorySystem}
)

// normalize enforces the operational/severity pairing.
func (c Classification) normalize() Classification {
	if !c.Operational {
		c.Severity = SeverityCritical
	}
	return c
}

// String renders the classification for logs and CLI output.
func (c Classification) String() string {
	op := "operational"
	if !c.Operational {
		op = "non-operational"
	}
	retry := "non-retryable"
	if c.Retryable {
		retry = "retryable"
	}
	return op + "/" + retry + "/" + string(c.Severity) + "/" + string(c.Category)
}
