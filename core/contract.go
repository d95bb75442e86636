package core

import (
	"reflect"
	"sort"
	"strings"
)

type Requirement int

const (
	Required Requirement = iota
	Optional
)

// Contract lists the operations a service implementation must expose.
type Contract struct {
	Role       string
	Operations map[string]Requirement
}

func (c Contract) Validate(instance any) error {
	return CheckContract(c, instance, c.Role)
}

// RequiredOperations returns the sorted required operation names.
func (c Contract) RequiredOperations() []string {
	names := make([]string, 0, len(c.Operations))
	for name, requirement := range c.Operations {
		if requirement == Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Supports reports whether instance exposes the named operation.
func Supports(instance any, operation string) bool {
	if isNilInstance(instance) {
		return false
	}
	method := reflect.ValueOf(instance).MethodByName(strings.TrimSpace(operation))
	return method.IsValid() && method.Kind() == reflect.Func
}

// CheckContract fails with a contract violation naming every missing required
// operation and the role the instance was offered for.
func CheckContract(contract Contract, instance any, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		role = strings.TrimSpace(contract.Role)
	}
	if role == "" {
		role = "service"
	}
	required := contract.RequiredOperations()
	if isNilInstance(instance) {
		return ContractViolationError(role, required)
	}
	missing := make([]string, 0)
	for _, name := range required {
		if !Supports(instance, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ContractViolationError(role, missing)
	}
	return nil
}

func isNilInstance(instance any) bool {
	if instance == nil {
		return true
	}
	value := reflect.ValueOf(instance)
	switch value.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return value.IsNil()
	default:
		return false
	}
}

var (
	ConfigContract = Contract{
		Role: "config",
		Operations: map[string]Requirement{
			"GetConfig":    Required,
			"SetConfig":    Required,
			"MergeConfig":  Required,
			"EnsureConfig": Optional,
		},
	}
	LoggingContract = Contract{
		Role: "logging",
		Operations: map[string]Requirement{
			"LogInfo":  Required,
			"LogError": Required,
		},
	}
	PubSubContract = Contract{
		Role: "pubsub",
		Operations: map[string]Requirement{
			"Subscribe":   Required,
			"Unsubscribe": Required,
			"Publish":     Optional,
		},
	}
	AnalyticsContract = Contract{
		Role: "analytics",
		Operations: map[string]Requirement{
			"SendTrackingLogEvent":      Required,
			"SendTrackEvent":            Required,
			"SendPageEvent":             Required,
			"IdentifyAuthenticatedUser": Required,
			"IdentifyAnonymousUser":     Required,
		},
	}
	AuthContract = Contract{
		Role: "auth",
		Operations: map[string]Requirement{
			"AuthenticatedHTTPClient": Required,
			"GetAuthenticatedUser":    Required,
			"SetAuthenticatedUser":    Required,
		},
	}
)
