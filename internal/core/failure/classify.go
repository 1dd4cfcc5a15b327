package failure

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	networkIndicators    = []string{"network", "fetch", "timeout"}
	validationIndicators = []string{"validation", "invalid"}
)

// Names of exceptions that indicate a programming defect rather than a
// runtime condition.
var defectNames = map[string]struct{}{
	"TypeError":                  {},
	"ReferenceError":             {},
	panicName:                    {},
	"runtime.TypeAssertionError": {},
}

var validationNames = map[string]struct{}{
	"ValidationError": {},
}

// Classify maps any failure to its Classification. It never fails and has no
// side effects; unrecognized inputs receive Default.
func Classify(err error) Classification {
	if err == nil {
		return Default
	}

	// A recovered panic is a defect whatever value it carried.
	var px *Exception
	if errors.As(err, &px) && px.Name == panicName {
		return defectClass
	}

	var se *Error
	if errors.As(err, &se) {
		return ClassifyCode(se.Code)
	}
	if ge := FromGRPC(err); ge != nil {
		return ClassifyCode(ge.Code)
	}

	var re runtime.Error
	if errors.As(err, &re) {
		return defectClass
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return networkClass
	case errors.Is(err, context.Canceled):
		return canceledClass
	}

	var ex *Exception
	if errors.As(err, &ex) {
		return ClassifyException(ex.Name, ex.Message)
	}
	return ClassifyException(typeName(err), err.Error())
}

// ClassifyCode looks up a structured error code.
func ClassifyCode(code Code) Classification {
	if c, ok := codeTable[code]; ok {
		return c.normalize()
	}
	return Default
}

// ClassifyException applies the substring heuristics used for generic
// exceptions. Matching is case-insensitive over both name and message.
func ClassifyException(name, message string) Classification {
	haystack := strings.ToLower(name + " " + message)

	if containsAny(haystack, networkIndicators) {
		return networkClass
	}
	if _, ok := validationNames[name]; ok || containsAny(haystack, validationIndicators) {
		return validationClass
	}
	if _, ok := defectNames[name]; ok {
		return defectClass
	}
	return genericClass
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// typeName names a plain Go error after its dynamic type, e.g. "net.OpError".
func typeName(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
