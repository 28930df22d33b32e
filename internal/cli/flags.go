package cli

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

type commonOptions struct {
	configPath string
	logFormat  string
	logLevel   string
}

func commonFlags(fs *flag.FlagSet) *commonOptions {
	opts := &commonOptions{}
	fs.StringVar(&opts.configPath, "config", application.DefaultConfigPath, "Config file path")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	return opts
}

func outputFlags(fs *flag.FlagSet, def application.OutputFormat) *application.OutputFormat {
	output := def
	fs.Var((*outputValue)(&output), "output", "Output format: text|json|html|brief")
	fs.Var((*outputValue)(&output), "o", "Output format: text|json|html|brief")
	return &output
}

type outputValue application.OutputFormat

func (o *outputValue) String() string { return string(*o) }

func (o *outputValue) Set(value string) error {
	switch application.OutputFormat(value) {
	case application.OutputText, application.OutputJSON, application.OutputHTML, application.OutputBrief:
		*o = outputValue(value)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", value)
	}
}

type inventoryFormatValue application.InventoryFormat

func (f *inventoryFormatValue) String() string { return string(*f) }

func (f *inventoryFormatValue) Set(value string) error {
	switch application.InventoryFormat(value) {
	case application.InventoryAuto, application.InventoryYAML, application.InventoryJSON, application.InventoryPostman:
		*f = inventoryFormatValue(value)
		return nil
	default:
		return fmt.Errorf("invalid inventory format: %s", value)
	}
}

// optionalInt sets *dst only when the flag is given.
type optionalInt struct{ dst **int }

func (o optionalInt) String() string {
	if o.dst == nil || *o.dst == nil {
		return ""
	}
	return strconv.Itoa(**o.dst)
}

func (o optionalInt) Set(value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*o.dst = &v
	return nil
}

// optionalFloat sets *dst only when the flag is given.
type optionalFloat struct{ dst **float64 }

func (o optionalFloat) String() string {
	if o.dst == nil || *o.dst == nil {
		return ""
	}
	return strconv.FormatFloat(**o.dst, 'g', -1, 64)
}

func (o optionalFloat) Set(value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*o.dst = &v
	return nil
}

func thresholdFlags(fs *flag.FlagSet) *domain.ThresholdOverrides {
	o := &domain.ThresholdOverrides{}
	fs.Var(optionalInt{&o.CriticalMinRequests}, "critical-min-requests", "Minimum requests for a critical endpoint")
	fs.Var(optionalFloat{&o.CriticalErrorRate}, "critical-error-rate", "Error rate (%) for a critical endpoint")
	fs.Var(optionalInt{&o.TopN}, "top", "Size of the most used and most failed lists")
	fs.Var(optionalFloat{&o.DegradingThreshold}, "degrading", "Error rate increase (pp) that marks a degrading endpoint")
	fs.Var(optionalFloat{&o.ImprovingThreshold}, "improving", "Error rate change (pp) that marks an improving endpoint")
	fs.Var(optionalFloat{&o.VolumeWeight}, "volume-weight", "Weight of request volume in priority scores")
	fs.Var(optionalFloat{&o.ErrorWeight}, "error-weight", "Weight of error rate in priority scores")
	fs.Var(optionalFloat{&o.SeverityFloorErrorRate}, "severity-floor", "Error rate (%) that always yields critical priority")
	fs.Var(optionalInt{&o.VisibilityThreshold}, "visibility", "Minimum requests before a coverage gap is reported")
	return o
}

// parseArgs parses flags wherever they appear and returns the positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}
