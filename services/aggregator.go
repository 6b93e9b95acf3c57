// services/aggregator.go
package services

import (
	"context"
	"fmt"
	"strings"

	"reward-ledger/models"

	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// creditedCTE attributes every record to its owner after gift redirection.
const creditedCTE = `
WITH credited AS (
	SELECT CASE WHEN is_gift THEN gift_recipient_id ELSE actor_id END AS actor_id,
	       reward_magnitude
	FROM action_records
)`

const leaderboardSQL = creditedCTE + `,
actors AS (
	SELECT actor_id FROM actor_profiles
	UNION
	SELECT actor_id FROM credited
),
totals AS (
	SELECT a.actor_id, COALESCE(SUM(c.reward_magnitude), 0) AS credited_total
	FROM actors a
	LEFT JOIN credited c ON c.actor_id = a.actor_id
	GROUP BY a.actor_id
)
SELECT RANK() OVER (ORDER BY t.credited_total DESC) AS rank,
       t.actor_id,
       COALESCE(p.display_name, t.actor_id) AS display_name,
       COALESCE(p.display_tag, '') AS display_tag,
       t.credited_total
FROM totals t
LEFT JOIN actor_profiles p ON p.actor_id = t.actor_id
ORDER BY t.credited_total DESC, t.actor_id ASC
LIMIT ?`

// Summary is one actor's credited history.
type Summary struct {
	ActorID           string                `json:"actor_id"`
	CreditedTotal     int64                 `json:"credited_total"`
	CreditedCount     int64                 `json:"credited_count"`
	CountByTier       map[models.Tier]int64 `json:"counts_by_tier"`
	ReceivedGiftTotal int64                 `json:"received_gift_total"`
	GiftedAwayTotal   int64                 `json:"gifted_away_total"`
	GiftedAwayCount   int64                 `json:"gifted_away_count"`
}

// HasHistory is false for an actor that neither acted nor received a gift.
func (s Summary) HasHistory() bool {
	return s.CreditedCount > 0 || s.GiftedAwayCount > 0
}

type LeaderboardRow struct {
	Rank          int64  `json:"rank"`
	ActorID       string `json:"actor_id"`
	DisplayName   string `json:"display_name"`
	DisplayTag    string `json:"display_tag,omitempty"`
	CreditedTotal int64  `json:"credited_total"`
}

func (r LeaderboardRow) Handle() string {
	return models.FormatHandle(r.DisplayName, r.DisplayTag)
}

// ActorTierRow is one line of the global stats table.
type ActorTierRow struct {
	ActorID       string                `json:"actor_id"`
	DisplayName   string                `json:"display_name"`
	DisplayTag    string                `json:"display_tag,omitempty"`
	CreditedTotal int64                 `json:"credited_total"`
	CountByTier   map[models.Tier]int64 `json:"counts_by_tier"`
}

// Aggregator answers read-only questions over the ledger. It never writes.
type Aggregator struct {
	DB    *gorm.DB
	bands []TierBand
}

func NewAggregator(db *gorm.DB, bands []TierBand) *Aggregator {
	return &Aggregator{DB: db, bands: bands}
}

// GlobalTotal sums every recorded magnitude, gifted or not.
func (a *Aggregator) GlobalTotal(ctx context.Context) (int64, error) {
	var total int64
	err := a.DB.WithContext(ctx).
		Raw(`SELECT COALESCE(SUM(reward_magnitude), 0) FROM action_records`).
		Scan(&total).Error
	if err != nil {
		return 0, storeError("global total", err)
	}
	return total, nil
}

// ActorSummary aggregates the records credited to actorID. Rewards the actor
// gifted away are reported apart and excluded from the credited figures.
func (a *Aggregator) ActorSummary(ctx context.Context, actorID string) (Summary, error) {
	summary := Summary{ActorID: actorID, CountByTier: emptyTierCounts(a.bands)}
	db := a.DB.WithContext(ctx)

	var rows []struct {
		Tier     string
		Records  int64
		Total    int64
		GiftedIn int64
	}
	q := fmt.Sprintf(`
SELECT %s AS tier,
       COUNT(*) AS records,
       COALESCE(SUM(reward_magnitude), 0) AS total,
       COALESCE(SUM(CASE WHEN is_gift THEN reward_magnitude ELSE 0 END), 0) AS gifted_in
FROM action_records
WHERE (is_gift = ? AND gift_recipient_id = ?) OR (is_gift = ? AND actor_id = ?)
GROUP BY 1`, tierCaseSQL(a.bands, "reward_magnitude"))
	if err := db.Raw(q, true, actorID, false, actorID).Scan(&rows).Error; err != nil {
		return Summary{}, storeError("actor summary", err)
	}
	for _, r := range rows {
		summary.CountByTier[models.Tier(r.Tier)] += r.Records
		summary.CreditedCount += r.Records
		summary.CreditedTotal += r.Total
		summary.ReceivedGiftTotal += r.GiftedIn
	}

	var away struct {
		Records int64
		Total   int64
	}
	err := db.Raw(`
SELECT COUNT(*) AS records, COALESCE(SUM(reward_magnitude), 0) AS total
FROM action_records
WHERE actor_id = ? AND is_gift = ?`, actorID, true).Scan(&away).Error
	if err != nil {
		return Summary{}, storeError("actor summary", err)
	}
	summary.GiftedAwayCount = away.Records
	summary.GiftedAwayTotal = away.Total
	return summary, nil
}

// Leaderboard ranks actors by credited total with RANK() semantics: equal
// totals share a rank and the next rank skips. Ties are listed by actor id.
func (a *Aggregator) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	limit = clampLimit(limit)
	var rows []LeaderboardRow
	if err := a.DB.WithContext(ctx).Raw(leaderboardSQL, limit).Scan(&rows).Error; err != nil {
		return nil, storeError("leaderboard", err)
	}
	return rows, nil
}

// TierBreakdown lists every credited actor with totals and per-tier counts.
func (a *Aggregator) TierBreakdown(ctx context.Context) ([]ActorTierRow, error) {
	cols := make([]string, len(a.bands))
	for i, b := range a.bands {
		cols[i] = fmt.Sprintf("SUM(CASE WHEN c.reward_magnitude BETWEEN %d AND %d THEN 1 ELSE 0 END)", b.Min, b.Max)
	}
	q := creditedCTE + fmt.Sprintf(`
SELECT c.actor_id,
       COALESCE(p.display_name, c.actor_id) AS display_name,
       COALESCE(p.display_tag, '') AS display_tag,
       SUM(c.reward_magnitude) AS credited_total,
       %s
FROM credited c
LEFT JOIN actor_profiles p ON p.actor_id = c.actor_id
GROUP BY c.actor_id, p.display_name, p.display_tag
ORDER BY credited_total DESC, display_name ASC, c.actor_id ASC`, strings.Join(cols, ",\n       "))

	rows, err := a.DB.WithContext(ctx).Raw(q).Rows()
	if err != nil {
		return nil, storeError("tier breakdown", err)
	}
	defer rows.Close()

	var out []ActorTierRow
	for rows.Next() {
		row := ActorTierRow{CountByTier: emptyTierCounts(a.bands)}
		counts := make([]int64, len(a.bands))
		dest := []any{&row.ActorID, &row.DisplayName, &row.DisplayTag, &row.CreditedTotal}
		for i := range counts {
			dest = append(dest, &counts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, storeError("tier breakdown", err)
		}
		for i, b := range a.bands {
			row.CountByTier[b.Tier] = counts[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("tier breakdown", err)
	}
	return out, nil
}

// tierCaseSQL maps a magnitude column to its tier name. Bands are validated
// integers and fixed tier names, so inlining them is safe.
func tierCaseSQL(bands []TierBand, column string) string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, b := range bands {
		fmt.Fprintf(&sb, " WHEN %s BETWEEN %d AND %d THEN '%s'", column, b.Min, b.Max, b.Tier)
	}
	sb.WriteString(" ELSE 'unknown' END")
	return sb.String()
}

func emptyTierCounts(bands []TierBand) map[models.Tier]int64 {
	counts := make(map[models.Tier]int64, len(bands))
	for _, b := range bands {
		counts[b.Tier] = 0
	}
	return counts
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}
