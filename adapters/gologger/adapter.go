package gologger

import (
	"context"
	"regexp"
	"strings"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "appshell.logging"

// Metadata keys holding live request/response values; they stay on the error.
var skippedMetadata = map[string]struct{}{"request": {}, "response": {}}

// LoggingService is the glog backed LoggingService. Errors whose message
// matches the ignore pattern are logged at info with ignoredError=true.
type LoggingService struct {
	logger  glog.Logger
	ignored *regexp.Regexp
}

// New is a core.Constructor for the logging slot, honouring
// Config.IgnoredErrorRegex.
func New(opts core.ServiceOptions) (core.LoggingService, error) {
	_, logger := Resolve(loggerName, nil, opts.Logger)
	return NewLoggingService(logger, opts.Config.IgnoredErrorRegex)
}

func NewLoggingService(logger glog.Logger, ignoredPattern string) (*LoggingService, error) {
	svc := &LoggingService{logger: glog.Ensure(logger)}
	if pattern := strings.TrimSpace(ignoredPattern); pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, core.BadInputError("gologger: invalid ignored_error_regex: " + err.Error())
		}
		svc.ignored = compiled
	}
	return svc, nil
}

func (s *LoggingService) LogInfo(message string, attrs map[string]any) {
	core.Log(context.Background(), s.logger, "info", message, attrs)
}

// LogError merges go-errors metadata and codes into attrs before logging.
func (s *LoggingService) LogError(err error, attrs map[string]any) {
	if err == nil {
		return
	}
	fields := core.CloneFields(attrs)
	if fields == nil {
		fields = map[string]any{}
	}
	message := err.Error()
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		for key, value := range rich.Metadata {
			if _, skip := skippedMetadata[key]; skip {
				continue
			}
			if _, exists := fields[key]; !exists {
				fields[key] = value
			}
		}
		if rich.TextCode != "" {
			fields["text_code"] = rich.TextCode
		}
		if rich.Code != 0 {
			fields["code"] = rich.Code
		}
		fields["category"] = string(rich.Category)
		message = rich.Message
	}
	fields["error"] = err.Error()

	if s.ignored != nil && s.ignored.MatchString(err.Error()) {
		fields["ignoredError"] = true
		core.Log(context.Background(), s.logger, "info", "Ignored error: "+message, fields)
		return
	}
	core.Log(context.Background(), s.logger, "error", message, fields)
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ResolveForJob resolves the glog pair and the matching go-job bridges used by
// the analytics flush worker.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	var jobLogger job.Logger
	if resolvedLogger != nil {
		jobLogger = job.GoLogger(resolvedLogger)
	}
	return resolvedProvider, resolvedLogger, jobProvider, jobLogger
}

var _ core.LoggingService = (*LoggingService)(nil)
