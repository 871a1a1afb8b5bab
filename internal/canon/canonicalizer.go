package canon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/xrash/smetrics"
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

// Canonicalizer resolves per-document entity mentions to cross-document
// canonical identities. All writes happen in the caller's transaction; the
// contribution guard makes re-resolving the same chunk a no-op.
type Canonicalizer struct {
	log         *logger.Logger
	canonRepo   repos.CanonicalEntityRepo
	entityRepo  repos.EntityRepo
	contribRepo repos.ContributionRepo
	threshold   float64
}

func New(
	baseLog *logger.Logger,
	canonRepo repos.CanonicalEntityRepo,
	entityRepo repos.EntityRepo,
	contribRepo repos.ContributionRepo,
	threshold float64,
) *Canonicalizer {
	return &Canonicalizer{
		log:         baseLog.With("service", "Canonicalizer"),
		canonRepo:   canonRepo,
		entityRepo:  entityRepo,
		contribRepo: contribRepo,
		threshold:   threshold,
	}
}

// Resolve applies one chunk's (text, label, count) mention: the per-document
// Entity aggregate, the canonical link, alias bookkeeping, and the mention
// tally. Candidates are scanned in creation order, so matching is
// deterministic.
func (c *Canonicalizer) Resolve(
	ctx context.Context,
	tx *gorm.DB,
	documentID uuid.UUID,
	chunkID uuid.UUID,
	text string,
	label string,
	count int,
) error {
	if documentID == uuid.Nil || chunkID == uuid.Nil || text == "" || label == "" || count < 1 {
		return nil
	}

	fresh, err := c.contribRepo.InsertIfAbsent(ctx, tx, &types.ChunkEntityContribution{
		ID:         uuid.New(),
		ChunkID:    chunkID,
		DocumentID: documentID,
		Text:       text,
		Label:      label,
		Count:      count,
	})
	if err != nil {
		return fmt.Errorf("record contribution: %w", err)
	}
	if !fresh {
		// This chunk's mention was already tallied by an earlier run.
		return nil
	}

	entity, err := c.entityRepo.UpsertIncrement(ctx, tx, documentID, text, label, count)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	if entity == nil {
		return nil
	}

	candidates, err := c.canonRepo.GetByLabel(ctx, tx, label)
	if err != nil {
		return fmt.Errorf("load canonical candidates: %w", err)
	}

	for _, cand := range candidates {
		if cand == nil || !c.matchesCandidate(text, cand) {
			continue
		}
		if err := c.linkToCanonical(ctx, tx, entity, cand, text, count); err != nil {
			return err
		}
		return nil
	}

	aliases, err := json.Marshal([]string{text})
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}
	ce := &types.CanonicalEntity{
		ID:            uuid.New(),
		CanonicalName: text,
		Label:         label,
		Aliases:       aliases,
		TotalMentions: count,
	}
	created, err := c.canonRepo.Create(ctx, tx, ce)
	if err != nil {
		return fmt.Errorf("create canonical entity: %w", err)
	}
	if created.ID != ce.ID {
		// A concurrent worker inserted the same (name, label) between our
		// candidate scan and the create. Fold this mention into its row.
		return c.linkToCanonical(ctx, tx, entity, created, text, count)
	}
	if err := c.entityRepo.SetCanonical(ctx, tx, entity.ID, created.ID); err != nil {
		return fmt.Errorf("link entity: %w", err)
	}
	return nil
}

func (c *Canonicalizer) matchesCandidate(mention string, cand *types.CanonicalEntity) bool {
	if Matches(mention, cand.CanonicalName, c.threshold) {
		return true
	}
	for _, alias := range decodeAliases(cand.Aliases) {
		if Matches(mention, alias, c.threshold) {
			return true
		}
	}
	return false
}

func (c *Canonicalizer) linkToCanonical(
	ctx context.Context,
	tx *gorm.DB,
	entity *types.Entity,
	cand *types.CanonicalEntity,
	mention string,
	count int,
) error {
	if err := c.entityRepo.SetCanonical(ctx, tx, entity.ID, cand.ID); err != nil {
		return fmt.Errorf("link entity: %w", err)
	}
	if err := c.canonRepo.IncrementMentions(ctx, tx, cand.ID, count); err != nil {
		return fmt.Errorf("increment mentions: %w", err)
	}

	updates := map[string]interface{}{}

	aliases := decodeAliases(cand.Aliases)
	if !containsString(aliases, mention) {
		raw, err := json.Marshal(append(aliases, mention))
		if err != nil {
			return fmt.Errorf("encode aliases: %w", err)
		}
		updates["aliases"] = raw
	}

	// The canonical name only upgrades to a strictly more complete form:
	// longer, and containing the current name. "J. Doe" never replaces
	// "John Doe"; "John Doe Jr" does.
	if len([]rune(mention)) > len([]rune(cand.CanonicalName)) &&
		normalizedContains(mention, cand.CanonicalName) {
		updates["canonical_name"] = mention
	}

	if len(updates) == 0 {
		return nil
	}
	if err := c.canonRepo.UpdateFields(ctx, tx, cand.ID, updates); err != nil {
		return fmt.Errorf("update canonical entity: %w", err)
	}
	return nil
}

// Matches reports whether two mention strings refer to the same entity:
// normalized token containment (initial-aware, so "J. Doe" matches
// "John Doe") or Jaro-Winkler similarity at or above threshold.
func Matches(a, b string, threshold float64) bool {
	na, nb := normalizeMention(a), normalizeMention(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if normalizedContains(a, b) || normalizedContains(b, a) {
		return true
	}
	return smetrics.JaroWinkler(na, nb, 0.7, 4) >= threshold
}

// normalizedContains reports whether every token of the inner mention
// matches a distinct token of the outer one, in order. A single-letter token
// matches any token it initials.
func normalizedContains(outer, inner string) bool {
	outerTokens := strings.Fields(normalizeMention(outer))
	innerTokens := strings.Fields(normalizeMention(inner))
	if len(innerTokens) == 0 || len(innerTokens) > len(outerTokens) {
		return false
	}
	i := 0
	for _, ot := range outerTokens {
		if i == len(innerTokens) {
			break
		}
		if tokenMatches(ot, innerTokens[i]) {
			i++
		}
	}
	return i == len(innerTokens)
}

func tokenMatches(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) == 1 && strings.HasPrefix(b, a) {
		return true
	}
	if len(b) == 1 && strings.HasPrefix(a, b) {
		return true
	}
	return false
}

func normalizeMention(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			sb.WriteRune(r)
		default:
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func decodeAliases(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
