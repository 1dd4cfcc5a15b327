package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/resilience/internal/core/failure"
)

var (
	classifyCode       string
	classifyHTTPStatus int
	classifyGRPCCode   string
	classifyName       string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [message]",
	Short: "Print the classification of a failure",
	Example: `  resilience classify --code RATE_LIMIT_EXCEEDED
  resilience classify --http 503 "upstream maintenance"
  resilience classify --grpc Unavailable
  resilience classify --name TypeError "x is undefined"`,
	Args: cobra.MaximumNArgs(1),
	Run:  runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyCode, "code", "", "structured error code")
	classifyCmd.Flags().IntVar(&classifyHTTPStatus, "http", 0, "upstream HTTP status")
	classifyCmd.Flags().StringVar(&classifyGRPCCode, "grpc", "", "gRPC status code name")
	classifyCmd.Flags().StringVar(&classifyName, "name", "Error", "exception name for unstructured failures")
	classifyCmd.MarkFlagsMutuallyExclusive("code", "http", "grpc")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) {
	msg := ""
	if len(args) > 0 {
		msg = args[0]
	}

	err := buildFailure(msg)

	out := struct {
		Error          string                 `json:"error"`
		Code           failure.Code           `json:"code,omitempty"`
		Classification failure.Classification `json:"classification"`
	}{
		Error:          err.Error(),
		Classification: failure.Classify(err),
	}
	if code, ok := failure.CodeOf(err); ok {
		out.Code = code
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	exitOnError("Failed to write output", enc.Encode(out))
}

// buildFailure turns the flags into the error to classify.
func buildFailure(msg string) error {
	switch {
	case classifyCode != "":
		return failure.New(failure.Code(strings.ToUpper(classifyCode)), msg)
	case classifyHTTPStatus != 0:
		return failure.FromHTTPStatus(classifyHTTPStatus, msg)
	case classifyGRPCCode != "":
		c, err := parseGRPCCode(classifyGRPCCode)
		exitOnError("Invalid gRPC code", err)
		return status.Error(c, msg)
	default:
		return failure.NewException(classifyName, msg)
	}
}

func parseGRPCCode(s string) (codes.Code, error) {
	for c := codes.OK; c <= codes.Unauthenticated; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return codes.Unknown, fmt.Errorf("unknown gRPC code %q", s)
}
