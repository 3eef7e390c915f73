package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/jask/ledgercore/internal/database"
	"github.com/jask/ledgercore/internal/database/repository"
)

// DefaultRuleWindow bounds the recent-transaction scan used for exception
// impact previews.
const DefaultRuleWindow = 500

// fuzzyThreshold matches when the normalized edit distance ratio is below
// this value.
const fuzzyThreshold = 0.4

// deletedRuleName is shown in provenance views when the rule is gone.
const deletedRuleName = "Deleted Rule"

// RuleEvent describes one field change a rule made to a transaction.
type RuleEvent struct {
	RuleID   string
	RuleName string
	Field    string
	OldValue string
	NewValue string
}

// ProvenanceEntry explains why a field holds its current value. Overridden
// applications are excluded.
type ProvenanceEntry struct {
	ApplicationID string
	RuleID        string
	RuleName      string
	Field         string
	OldValue      string
	NewValue      string
	OldDisplay    string
	NewDisplay    string
	AppliedAt     time.Time
}

// RuleService matches transactions against stored rules, applies field
// changes with provenance records, and maintains payee exceptions.
type RuleService struct {
	DB         *sql.DB
	WindowSize int
}

// Run sweeps the given transactions through every enabled rule. Field
// changes that affect aggregates go through snapshot/reconcile like any
// other mutation. The whole sweep is one atomic commit; cancellation is
// honored between per-transaction cycles only.
func (s *RuleService) Run(ctx context.Context, txnIDs []string, source string) (map[string][]RuleEvent, error) {
	events := map[string][]RuleEvent{}
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		rules, err := repository.NewAutoRuleRepo(tx).ListEnabled(ctx)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			return nil
		}
		txns := repository.NewTransactionRepo(tx)
		for _, id := range txnIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := txns.Get(ctx, id)
			if err != nil {
				return err
			}
			if t == nil || t.Kind != repository.KindStandard {
				continue
			}
			isParent, err := txns.HasLegs(ctx, id)
			if err != nil {
				return err
			}
			if isParent {
				continue
			}
			for _, rule := range rules {
				matched, err := ruleMatches(rule, *t, true)
				if err != nil {
					continue // unparseable pattern; rule degrades to non-matching
				}
				if !matched {
					continue
				}
				applied, err := s.applyRule(ctx, tx, rule, t, source)
				if err != nil {
					return err
				}
				events[id] = append(events[id], applied...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// applyRule applies one matching rule to one transaction, mutating t in
// place so later rules in the same sweep see the updated state.
func (s *RuleService) applyRule(ctx context.Context, tx *sql.Tx, rule repository.AutoRule, t *repository.Transaction, source string) ([]RuleEvent, error) {
	txns := repository.NewTransactionRepo(tx)
	apps := repository.NewRuleApplicationRepo(tx)
	cats := repository.NewCategoryRepo(tx)

	snap, err := Take(ctx, tx, *t)
	if err != nil {
		return nil, err
	}
	after := *t
	var changes []repository.RuleApplication

	if rule.SetCategoryID != nil && !ptrEqual(t.CategoryID, rule.SetCategoryID) {
		target, err := cats.Get(ctx, *rule.SetCategoryID)
		if err != nil {
			return nil, err
		}
		// A rule pointing at a deleted category degrades: the field is left
		// alone, never reverted.
		if target != nil {
			changes = append(changes, repository.RuleApplication{
				Field:    FieldCategory,
				OldValue: strOrEmpty(t.CategoryID),
				NewValue: *rule.SetCategoryID,
			})
			after.CategoryID = rule.SetCategoryID
		}
	}
	if rule.SetPayee != nil && *rule.SetPayee != t.Payee {
		changes = append(changes, repository.RuleApplication{
			Field:    FieldPayee,
			OldValue: t.Payee,
			NewValue: *rule.SetPayee,
		})
		after.Payee = *rule.SetPayee
	}

	var addedTags []string
	have := make(map[string]bool, len(t.Tags))
	for _, tag := range t.Tags {
		have[tag.ID] = true
	}
	for _, tagID := range rule.AddTagIDs {
		if tagID != "" && !have[tagID] {
			addedTags = append(addedTags, tagID)
		}
	}

	if len(changes) == 0 && len(addedTags) == 0 {
		return nil, nil
	}

	if len(changes) > 0 {
		if err := txns.Update(ctx, after); err != nil {
			return nil, err
		}
		if err := Reconcile(ctx, tx, snap, after); err != nil {
			return nil, err
		}
	}
	for _, tagID := range addedTags {
		if err := txns.AttachTag(ctx, t.ID, tagID); err != nil {
			return nil, err
		}
	}
	if len(addedTags) > 0 {
		changes = append(changes, repository.RuleApplication{
			Field:    FieldTags,
			OldValue: joinTagIDs(t.Tags),
			NewValue: strings.Join(append(tagIDList(t.Tags), addedTags...), ","),
		})
	}

	var events []RuleEvent
	for _, change := range changes {
		change.ID = uuid.NewString()
		change.TransactionID = t.ID
		change.RuleID = rule.ID
		change.Source = source
		if err := apps.Add(ctx, change); err != nil {
			return nil, err
		}
		if err := addAudit(ctx, tx, t.ID, fmt.Sprintf("rule %q set %s", rule.Name, change.Field), source); err != nil {
			return nil, err
		}
		events = append(events, RuleEvent{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Field:    change.Field,
			OldValue: change.OldValue,
			NewValue: change.NewValue,
		})
	}

	*t = after
	for _, tagID := range addedTags {
		t.Tags = append(t.Tags, repository.Tag{ID: tagID})
	}
	return events, nil
}

// MarkOverridden flips one application record; it no longer contributes to
// provenance views or exception impact counts.
func (s *RuleService) MarkOverridden(ctx context.Context, applicationID string) error {
	return repository.NewRuleApplicationRepo(s.DB).MarkOverridden(ctx, applicationID)
}

// AddPayeeException excludes a payee from a rule. The exception is keyed on
// the payee as it existed before the rule renamed it, when the rule's most
// recent payee application is available; otherwise on the given payee text.
// Returns the stored key and the number of recent transactions the rule
// would stop matching.
func (s *RuleService) AddPayeeException(ctx context.Context, ruleID, payeeText string) (string, int, error) {
	var key string
	var impact int
	err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		ruleRepo := repository.NewAutoRuleRepo(tx)
		rule, err := ruleRepo.Get(ctx, ruleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return validationErr("rule", "rule %s not found", ruleID)
		}
		value := payeeText
		latest, err := repository.NewRuleApplicationRepo(tx).LatestForRuleField(ctx, ruleID, FieldPayee)
		if err != nil {
			return err
		}
		if latest != nil && latest.OldValue != "" {
			value = latest.OldValue
		}
		key = NormalizePayee(value)
		if key == "" {
			return validationErr("payee", "payee is empty")
		}
		if err := ruleRepo.AddException(ctx, ruleID, key); err != nil {
			return err
		}
		impact, err = s.exceptionImpact(ctx, tx, *rule, key)
		return err
	})
	if err != nil {
		return "", 0, err
	}
	return key, impact, nil
}

// exceptionImpact re-runs the match predicate (exceptions excluded) over a
// bounded recent window and counts matches whose normalized payee equals the
// new key. Transactions carrying an overridden application from the rule are
// excluded.
func (s *RuleService) exceptionImpact(ctx context.Context, tx *sql.Tx, rule repository.AutoRule, key string) (int, error) {
	window := s.WindowSize
	if window <= 0 {
		window = DefaultRuleWindow
	}
	recent, err := repository.NewTransactionRepo(tx).ListRecent(ctx, window)
	if err != nil {
		return 0, err
	}
	apps := repository.NewRuleApplicationRepo(tx)
	count := 0
	for _, t := range recent {
		if NormalizePayee(t.Payee) != key {
			continue
		}
		matched, err := ruleMatches(rule, t, false)
		if err != nil || !matched {
			continue
		}
		overridden, err := apps.HasOverriddenForRule(ctx, t.ID, rule.ID)
		if err != nil {
			return 0, err
		}
		if overridden {
			continue
		}
		count++
	}
	return count, nil
}

// Provenance returns the non-overridden application records for a
// transaction, with deleted rules and categories degraded to placeholders.
func (s *RuleService) Provenance(ctx context.Context, transactionID string) ([]ProvenanceEntry, error) {
	apps, err := repository.NewRuleApplicationRepo(s.DB).ByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	ruleRepo := repository.NewAutoRuleRepo(s.DB)
	cats := repository.NewCategoryRepo(s.DB)
	ruleNames := map[string]string{}
	var out []ProvenanceEntry
	for _, a := range apps {
		if a.WasOverridden {
			continue
		}
		name, ok := ruleNames[a.RuleID]
		if !ok {
			rule, err := ruleRepo.Get(ctx, a.RuleID)
			if err != nil {
				return nil, err
			}
			name = deletedRuleName
			if rule != nil {
				name = rule.Name
			}
			ruleNames[a.RuleID] = name
		}
		entry := ProvenanceEntry{
			ApplicationID: a.ID,
			RuleID:        a.RuleID,
			RuleName:      name,
			Field:         a.Field,
			OldValue:      a.OldValue,
			NewValue:      a.NewValue,
			OldDisplay:    a.OldValue,
			NewDisplay:    a.NewValue,
			AppliedAt:     a.AppliedAt,
		}
		if a.Field == FieldCategory {
			entry.OldDisplay = categoryDisplay(ctx, cats, a.OldValue)
			entry.NewDisplay = categoryDisplay(ctx, cats, a.NewValue)
		}
		out = append(out, entry)
	}
	return out, nil
}

func categoryDisplay(ctx context.Context, cats *repository.CategoryRepo, id string) string {
	if id == "" {
		return "Uncategorized"
	}
	cat, err := cats.Get(ctx, id)
	if err != nil || cat == nil {
		return "(deleted)"
	}
	return cat.Name
}

// NormalizePayee builds the case-insensitive comparison key used for rule
// exceptions and exact matching: uppercased, whitespace collapsed.
func NormalizePayee(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// ruleMatches applies the full match predicate. withExceptions controls
// whether the payee exception set short-circuits the match.
func ruleMatches(rule repository.AutoRule, t repository.Transaction, withExceptions bool) (bool, error) {
	ok, err := payeeMatches(rule, t.Payee)
	if err != nil || !ok {
		return false, err
	}
	if rule.AccountID != nil && *rule.AccountID != t.AccountID {
		return false, nil
	}
	if rule.AmountMin != nil && t.Amount.LessThan(*rule.AmountMin) {
		return false, nil
	}
	if rule.AmountMax != nil && t.Amount.GreaterThan(*rule.AmountMax) {
		return false, nil
	}
	if withExceptions {
		key := NormalizePayee(t.Payee)
		for _, exception := range rule.Exceptions {
			if exception == key {
				return false, nil
			}
		}
	}
	return true, nil
}

func payeeMatches(rule repository.AutoRule, payee string) (bool, error) {
	normalized := NormalizePayee(payee)
	pattern := NormalizePayee(rule.PayeePattern)
	switch rule.PatternType {
	case repository.PatternExact:
		return normalized == pattern, nil
	case repository.PatternContains, "":
		return strings.Contains(normalized, pattern), nil
	case repository.PatternRegex:
		re, err := regexp.Compile("(?i)" + rule.PayeePattern)
		if err != nil {
			return false, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		return re.MatchString(payee), nil
	case repository.PatternFuzzy:
		if len(normalized) == 0 || len(pattern) == 0 {
			return false, nil
		}
		dist := levenshtein.ComputeDistance(normalized, pattern)
		maxlen := len(normalized)
		if len(pattern) > maxlen {
			maxlen = len(pattern)
		}
		return float64(dist)/float64(maxlen) < fuzzyThreshold, nil
	default:
		return false, fmt.Errorf("rule %s: unknown pattern type %q", rule.ID, rule.PatternType)
	}
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func tagIDList(tags []repository.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.ID)
	}
	return out
}

func joinTagIDs(tags []repository.Tag) string {
	return strings.Join(tagIDList(tags), ",")
}
