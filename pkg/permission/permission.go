/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*Package permission decides whether a principal may write a repository path.

Checks are made through the Checker interface. Rules is the configurable
implementation: an ordered list of glob patterns over the principal, the
repository and the asset path, where the first matching rule decides.
*/
package permission // import "helm.sh/chartrepo/pkg/permission"

import (
	"context"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"helm.sh/chartrepo/pkg/errdefs"
)

// Anonymous is the principal of requests that carry none.
const Anonymous = "anonymous"

type principalKey struct{}

// WithPrincipal returns a context carrying the acting principal.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// Principal returns the principal carried by ctx, or Anonymous.
func Principal(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok && p != "" {
		return p
	}
	return Anonymous
}

// Checker authorizes writes to a repository.
type Checker interface {
	// EnsurePermitted returns a PermissionDenied error unless the principal
	// in ctx may write path in repository. vars carries additional
	// attributes of the request and may be nil.
	EnsurePermitted(ctx context.Context, repository, format, path string, vars map[string]string) error
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func(ctx context.Context, repository, format, path string, vars map[string]string) error

// EnsurePermitted calls f.
func (f CheckerFunc) EnsurePermitted(ctx context.Context, repository, format, path string, vars map[string]string) error {
	return f(ctx, repository, format, path, vars)
}

// AllowAll permits every write.
var AllowAll Checker = CheckerFunc(func(context.Context, string, string, string, map[string]string) error {
	return nil
})

// DenyAll refuses every write.
var DenyAll Checker = CheckerFunc(func(ctx context.Context, repository, _, path string, _ map[string]string) error {
	return denied(ctx, repository, path)
})

// Rule is one entry of a rule list. Empty patterns match anything.
type Rule struct {
	Principal  string `json:"principal,omitempty" toml:"principal"`
	Repository string `json:"repository,omitempty" toml:"repository"`
	Path       string `json:"path,omitempty" toml:"path"`
	Allow      bool   `json:"allow" toml:"allow"`
}

type compiledRule struct {
	principal, repository, path glob.Glob
	allow                       bool
}

// Rules is a compiled rule list. Writes that match no rule are denied.
type Rules struct {
	rules []compiledRule
}

// NewRules compiles rules in order.
func NewRules(rules ...Rule) (*Rules, error) {
	out := &Rules{}
	for i, r := range rules {
		var (
			c   = compiledRule{allow: r.Allow}
			err error
		)
		if c.principal, err = compile(r.Principal); err != nil {
			return nil, errors.Wrapf(err, "rule %d: invalid principal pattern", i)
		}
		// Repository names never contain '/', so '*' may span the whole name.
		if c.repository, err = compile(r.Repository); err != nil {
			return nil, errors.Wrapf(err, "rule %d: invalid repository pattern", i)
		}
		if c.path, err = compile(r.Path, '/'); err != nil {
			return nil, errors.Wrapf(err, "rule %d: invalid path pattern", i)
		}
		out.rules = append(out.rules, c)
	}
	return out, nil
}

// EnsurePermitted implements Checker.
func (r *Rules) EnsurePermitted(ctx context.Context, repository, _, path string, _ map[string]string) error {
	principal := Principal(ctx)
	for _, rule := range r.rules {
		if rule.principal.Match(principal) && rule.repository.Match(repository) && rule.path.Match(path) {
			if rule.allow {
				return nil
			}
			break
		}
	}
	return denied(ctx, repository, path)
}

func compile(pattern string, separators ...rune) (glob.Glob, error) {
	if pattern == "" {
		pattern = "**"
	}
	return glob.Compile(pattern, separators...)
}

func denied(ctx context.Context, repository, path string) error {
	return errdefs.ErrPermissionDenied("%s may not write %s to repository %s", Principal(ctx), path, repository)
}
