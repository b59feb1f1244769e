package condition

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"sdui/internal/screen"
)

// Context is the client-side view a condition set is checked against.
type Context struct {
	Platform        string
	UserSegment     string
	GeoLocation     string
	ExperimentGroup string
	UserID          string
	AppVersion      string
	Now             time.Time
}

type Result struct {
	Allowed bool
	Reason  string
}

// FlagResult is what a feature-flag collaborator reports for one flag.
type FlagResult struct {
	Enabled       bool
	ConditionsMet bool
}

// FlagResolver answers featureFlag conditions. It is the only lookup the
// evaluator is allowed to make outside its inputs.
type FlagResolver interface {
	ResolveFlag(ctx context.Context, moduleID, flagName string, ec Context) (FlagResult, error)
}

const defaultProgramCacheSize = 256

// Evaluator checks condition sets. It is safe for concurrent use.
type Evaluator struct {
	flags    FlagResolver
	programs *lru.Cache[string, *vm.Program]
}

func New(flags FlagResolver) *Evaluator {
	programs, err := lru.New[string, *vm.Program](defaultProgramCacheSize)
	if err != nil {
		// Only fails for a non-positive size.
		panic(err)
	}
	return &Evaluator{flags: flags, programs: programs}
}

var allowed = Result{Allowed: true}

func deny(format string, args ...any) Result {
	return Result{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate applies AND semantics over every present key and reports the first
// failing one.
func (e *Evaluator) Evaluate(ctx context.Context, c *screen.Conditions, ec Context) Result {
	if c.IsZero() {
		return allowed
	}
	if ec.Now.IsZero() {
		ec.Now = time.Now()
	}
	if c.Platform != nil && !member(c.Platform, ec.Platform) {
		return deny("platform %q not in %v", ec.Platform, c.Platform)
	}
	if c.UserSegment != nil && !member(c.UserSegment, ec.UserSegment) {
		return deny("user segment %q not in %v", ec.UserSegment, c.UserSegment)
	}
	if c.GeoLocation != nil && !member(c.GeoLocation, ec.GeoLocation) {
		return deny("geo location %q not in %v", ec.GeoLocation, c.GeoLocation)
	}
	if c.ExperimentGroup != nil && !member(c.ExperimentGroup, ec.ExperimentGroup) {
		return deny("experiment group %q not in %v", ec.ExperimentGroup, c.ExperimentGroup)
	}
	if dr := c.DateRange; dr != nil {
		if dr.Start != nil && ec.Now.Before(*dr.Start) {
			return deny("before %s", dr.Start.Format(time.RFC3339))
		}
		if dr.End != nil && ec.Now.After(*dr.End) {
			return deny("after %s", dr.End.Format(time.RFC3339))
		}
	}
	if c.AppVersion != "" {
		if r := checkAppVersion(c.AppVersion, ec.AppVersion); !r.Allowed {
			return r
		}
	}
	if c.FeatureFlag != "" {
		if r := e.checkFlag(ctx, c.FeatureFlag, ec); !r.Allowed {
			return r
		}
	}
	if c.Expression != "" {
		if r := e.checkExpression(c.Expression, ec); !r.Allowed {
			return r
		}
	}
	return allowed
}

// Allowed is Evaluate without the reason.
func (e *Evaluator) Allowed(ctx context.Context, c *screen.Conditions, ec Context) bool {
	return e.Evaluate(ctx, c, ec).Allowed
}

func member(set []string, v string) bool {
	if v == "" {
		return false
	}
	return slices.ContainsFunc(set, func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), v)
	})
}

func checkAppVersion(constraint, version string) Result {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return deny("invalid app version constraint %q: %v", constraint, err)
	}
	if strings.TrimSpace(version) == "" {
		return deny("app version unknown, required %s", constraint)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return deny("invalid app version %q", version)
	}
	if !c.Check(v) {
		return deny("app version %s does not satisfy %s", version, constraint)
	}
	return allowed
}

// SplitFlag splits "module:flag" into its parts. A bare name has no module.
func SplitFlag(ref string) (moduleID, flagName string) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, ":"); i >= 0 {
		return strings.TrimSpace(ref[:i]), strings.TrimSpace(ref[i+1:])
	}
	return "", ref
}

func (e *Evaluator) checkFlag(ctx context.Context, ref string, ec Context) Result {
	if e == nil || e.flags == nil {
		return deny("feature flag %q: no flag resolver", ref)
	}
	moduleID, flag := SplitFlag(ref)
	res, err := e.flags.ResolveFlag(ctx, moduleID, flag, ec)
	if err != nil {
		return deny("feature flag %q: %v", ref, err)
	}
	if !res.Enabled {
		return deny("feature flag %q disabled", ref)
	}
	if !res.ConditionsMet {
		return deny("feature flag %q conditions not met", ref)
	}
	return allowed
}

func (e *Evaluator) checkExpression(src string, ec Context) Result {
	program, err := e.compile(src)
	if err != nil {
		return deny("expression %q: %v", src, err)
	}
	out, err := expr.Run(program, exprEnv(ec))
	if err != nil {
		return deny("expression %q: %v", src, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return deny("expression %q did not yield a boolean", src)
	}
	if !ok {
		return deny("expression %q is false", src)
	}
	return allowed
}

func (e *Evaluator) compile(src string) (*vm.Program, error) {
	if e != nil && e.programs != nil {
		if p, ok := e.programs.Get(src); ok {
			return p, nil
		}
	}
	p, err := expr.Compile(src, expr.Env(exprEnv(Context{})), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	if e != nil && e.programs != nil {
		e.programs.Add(src, p)
	}
	return p, nil
}

func exprEnv(ec Context) map[string]any {
	return map[string]any{
		"platform":        ec.Platform,
		"userSegment":     ec.UserSegment,
		"geoLocation":     ec.GeoLocation,
		"experimentGroup": ec.ExperimentGroup,
		"userId":          ec.UserID,
		"appVersion":      ec.AppVersion,
		"now":             ec.Now,
	}
}
