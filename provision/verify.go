package provision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"elisedb/schema"
	"elisedb/storage"
)

// Finding kinds
const (
	FindingUser       = "user"
	FindingCollection = "collection"
	FindingIndex      = "index"
)

// Finding is one difference between the persisted state and the plan
type Finding struct {
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s", f.Kind, f.Target, f.Message)
}

// Verification is the result of comparing a database with a plan
type Verification struct {
	Database string    `json:"database"`
	Findings []Finding `json:"findings"`
}

// OK reports whether the database matches the plan
func (v *Verification) OK() bool {
	return len(v.Findings) == 0
}

func (v *Verification) add(kind, target, format string, args ...interface{}) {
	v.Findings = append(v.Findings, Finding{Kind: kind, Target: target, Message: fmt.Sprintf(format, args...)})
}

type verifyOptions struct {
	expectEmpty bool
}

// VerifyOption configures Verify
type VerifyOption func(*verifyOptions)

// WithExpectEmpty also requires every planned collection to hold no documents
func WithExpectEmpty() VerifyOption {
	return func(o *verifyOptions) { o.expectEmpty = true }
}

// Verify reads back the user, collections and indexes of the database the
// inspector is bound to and reports every difference from plan. Indexes are
// matched by key pattern and unique flag, not by name. The returned error is
// reserved for failures to read the state.
func Verify(ctx context.Context, inspector storage.Inspector, plan schema.Plan, opts ...VerifyOption) (*Verification, error) {
	var o verifyOptions
	for _, opt := range opts {
		opt(&o)
	}

	v := &Verification{Database: plan.Database, Findings: []Finding{}}

	if err := verifyUser(ctx, inspector, plan, v); err != nil {
		return nil, err
	}

	present, err := verifyCollections(ctx, inspector, plan, o, v)
	if err != nil {
		return nil, err
	}

	if err := verifyIndexes(ctx, inspector, plan, present, v); err != nil {
		return nil, err
	}

	return v, nil
}

func verifyUser(ctx context.Context, inspector storage.Inspector, plan schema.Plan, v *Verification) error {
	username := plan.User.Username
	users, err := inspector.UsersInfo(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to inspect user %q: %w", username, err)
	}

	switch {
	case len(users) == 0:
		v.add(FindingUser, username, "does not exist")
		return nil
	case len(users) > 1:
		v.add(FindingUser, username, "exists %d times", len(users))
	}

	user := users[0]
	if user.DB != plan.Database {
		v.add(FindingUser, username, "is defined on %q, want %q", user.DB, plan.Database)
	}

	want := make(map[string]bool, len(plan.User.Roles))
	for _, r := range plan.User.Roles {
		want[grantKey(r.Role, r.DB)] = true
	}
	have := make(map[string]bool, len(user.Roles))
	for _, r := range user.Roles {
		have[grantKey(r.Role, r.DB)] = true
	}

	for _, k := range sortedKeys(want) {
		if !have[k] {
			v.add(FindingUser, username, "missing role %s", k)
		}
	}
	for _, k := range sortedKeys(have) {
		if !want[k] {
			v.add(FindingUser, username, "has unplanned role %s", k)
		}
	}
	return nil
}

func verifyCollections(ctx context.Context, inspector storage.Inspector, plan schema.Plan, o verifyOptions, v *Verification) (map[string]bool, error) {
	names, err := inspector.CollectionNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect collections: %w", err)
	}

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	planned := make(map[string]bool, len(plan.Collections))
	for _, c := range plan.Collections {
		planned[c.Name] = true
		if !present[c.Name] {
			v.add(FindingCollection, c.Name, "does not exist")
			continue
		}
		if !o.expectEmpty {
			continue
		}
		count, err := inspector.CountDocuments(ctx, c.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to count documents in %q: %w", c.Name, err)
		}
		if count > 0 {
			v.add(FindingCollection, c.Name, "holds %d documents, want none", count)
		}
	}

	sort.Strings(names)
	for _, n := range names {
		if !planned[n] && !strings.HasPrefix(n, "system.") {
			v.add(FindingCollection, n, "is not part of the plan")
		}
	}

	return present, nil
}

func verifyIndexes(ctx context.Context, inspector storage.Inspector, plan schema.Plan, present map[string]bool, v *Verification) error {
	listed := make(map[string][]storage.IndexInfo)

	for _, idx := range plan.Indexes {
		target := idx.Collection + "." + idx.Field
		if !present[idx.Collection] {
			v.add(FindingIndex, target, "collection %q does not exist", idx.Collection)
			continue
		}

		indexes, ok := listed[idx.Collection]
		if !ok {
			var err error
			indexes, err = inspector.Indexes(ctx, idx.Collection)
			if err != nil {
				return fmt.Errorf("failed to inspect indexes of %q: %w", idx.Collection, err)
			}
			listed[idx.Collection] = indexes
		}

		signature := idx.Field + ":1"
		var match *storage.IndexInfo
		for i := range indexes {
			if indexes[i].KeySignature() == signature {
				match = &indexes[i]
				break
			}
		}

		switch {
		case match == nil:
			v.add(FindingIndex, target, "no index on {%s}", signature)
		case match.IsUnique() != idx.Unique:
			v.add(FindingIndex, target, "index %q has unique=%t, want unique=%t", match.Name, match.IsUnique(), idx.Unique)
		}
	}
	return nil
}

func grantKey(role, db string) string {
	return role + "@" + db
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
