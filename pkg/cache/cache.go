// Package cache provides the injectable effective-rule-set cache used by the
// configuration resolver. Implementations must support concurrent readers.
package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// Key identifies one cached effective rule set.
type Key struct {
	CompanyID        uuid.UUID
	DocumentFormatID uuid.UUID
}

// String renders the key in "{companyId}:{formatId}" form.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.CompanyID, k.DocumentFormatID)
}

// RuleSetCache caches merged rule sets keyed by (company, format).
// Two concurrent misses for the same key may both recompute and both write;
// last-writer-wins is acceptable because the merge is deterministic.
type RuleSetCache interface {
	Get(ctx context.Context, key Key) (*models.EffectiveRuleSet, bool)
	Set(ctx context.Context, key Key, ruleSet *models.EffectiveRuleSet)
	Invalidate(ctx context.Context, key Key)
	// InvalidateCompany drops every entry for one company, any format.
	InvalidateCompany(ctx context.Context, companyID uuid.UUID)
	// InvalidateFormat drops every entry for one document format, any company.
	InvalidateFormat(ctx context.Context, formatID uuid.UUID)
	// Clear drops everything. Used when a GLOBAL configuration changes.
	Clear(ctx context.Context)
}
