package ranking

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"profile", CategoryProfile},
		{"Decision", CategoryDecision},
		{"text", CategoryNote},
		{"contacts", CategoryContact},
		{"whatsapp", CategoryConversation},
		{"messenger", CategoryConversation},
		{"search_history", CategorySearchHistory},
		{"", CategoryNote},
		{"spreadsheet", CategoryNote},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeCategory(tt.in); got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestTypeWeightOrdering(t *testing.T) {
	order := []string{"profile", "decision", "note", "email", "contact", "conversation", "interests", "location", "search_history"}
	for i := 1; i < len(order); i++ {
		if TypeWeight(order[i-1]) <= TypeWeight(order[i]) {
			t.Errorf("expected %s > %s", order[i-1], order[i])
		}
	}
}

func TestRecencyWeight(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)

	t.Run("missing date is neutral", func(t *testing.T) {
		if got := RecencyWeight("", 365, now); got != 0.5 {
			t.Errorf("got %v, want 0.5", got)
		}
	})
	t.Run("malformed date falls back to now", func(t *testing.T) {
		if got := RecencyWeight("yesterday-ish", 365, now); !almostEqual(got, 1.0) {
			t.Errorf("got %v, want 1.0", got)
		}
	})
	t.Run("old date floors at zero", func(t *testing.T) {
		if got := RecencyWeight("2020-01-01", 365, now); got != 0 {
			t.Errorf("got %v, want 0", got)
		}
	})
	t.Run("half window", func(t *testing.T) {
		d := now.Add(-time.Duration(100*24) * time.Hour).Format("2006-01-02T15:04:05")
		if got := RecencyWeight(d, 200, now); !almostEqual(got, 0.5) {
			t.Errorf("got %v, want 0.5", got)
		}
	})
	t.Run("future date caps at one", func(t *testing.T) {
		if got := RecencyWeight("2024-09-13", 365, now); got != 1 {
			t.Errorf("got %v, want 1", got)
		}
	})
	t.Run("date-only today counts as zero days old", func(t *testing.T) {
		if got := RecencyWeight(now.Format("2006-01-02"), 365, now); got != 1 {
			t.Errorf("got %v, want 1", got)
		}
	})
	t.Run("partial days are floored", func(t *testing.T) {
		d := now.Add(-36 * time.Hour).Format("2006-01-02T15:04:05")
		if got := RecencyWeight(d, 100, now); !almostEqual(got, 0.99) {
			t.Errorf("got %v, want 0.99", got)
		}
	})
	t.Run("timezone suffix ignored", func(t *testing.T) {
		d := now.Format("2006-01-02T15:04:05") + ".123456+02:00"
		if got := RecencyWeight(d, 365, now); !almostEqual(got, 1.0) {
			t.Errorf("got %v, want 1.0", got)
		}
	})
}

func TestCalculatePriority(t *testing.T) {
	now := time.Now()
	today := now.Format("2006-01-02T15:04:05")

	t.Run("pinned recent profile exceeds one", func(t *testing.T) {
		p := CalculatePriority(PriorityInput{Category: "profile", IsPinned: true, Date: today}, 365, now)
		if p.TypeWeight != 120 || p.ApprovalWeight != 50 {
			t.Fatalf("weights: %+v", p)
		}
		if !almostEqual(p.TypeContribution, 1.2) {
			t.Errorf("type contribution = %v, want 1.2", p.TypeContribution)
		}
		want := 0.4*1.2 + 0.3*1.0 + 0.3*p.RecencyContribution
		if !almostEqual(p.Score, want) {
			t.Errorf("score = %v, want %v", p.Score, want)
		}
		if p.Score <= 1.0 {
			t.Errorf("expected unclamped score above 1.0, got %v", p.Score)
		}
	})

	t.Run("approved email without date", func(t *testing.T) {
		p := CalculatePriority(PriorityInput{Category: "email", IsApproved: true}, 365, now)
		want := 0.4*0.5 + 0.3*0.6 + 0.3*0.5
		if !almostEqual(p.Score, want) {
			t.Errorf("score = %v, want %v", p.Score, want)
		}
	})

	t.Run("old date gives zero recency", func(t *testing.T) {
		p := CalculatePriority(PriorityInput{Category: "note", Date: "2020-01-01"}, 365, now)
		if p.RecencyWeight != 0 {
			t.Errorf("recency = %v, want 0", p.RecencyWeight)
		}
	})

	t.Run("future date gives full recency", func(t *testing.T) {
		march := time.Date(2024, 3, 13, 12, 0, 0, 0, time.Local)
		p := CalculatePriority(PriorityInput{Category: "email", Date: "2024-06-13"}, 365, march)
		if p.RecencyWeight != 1 || p.RecencyContribution != 1 {
			t.Errorf("recency = %v / %v, want 1", p.RecencyWeight, p.RecencyContribution)
		}
	})

	t.Run("profile beats stale search history", func(t *testing.T) {
		high := CalculatePriority(PriorityInput{Category: "profile", IsPinned: true, Date: today}, 365, now)
		old := now.AddDate(0, 0, -400).Format("2006-01-02T15:04:05")
		low := CalculatePriority(PriorityInput{Category: "search_history", Date: old}, 365, now)
		if high.Score <= low.Score {
			t.Errorf("profile %v should exceed search_history %v", high.Score, low.Score)
		}
	})
}

func TestContributionBounds(t *testing.T) {
	now := time.Now()
	categories := []string{"profile", "decision", "note", "email", "contact", "conversation", "interests", "location", "search_history", "unknown"}
	dates := []string{"", "garbage", "1999-01-01", now.Format("2006-01-02"), now.AddDate(1, 0, 0).Format("2006-01-02")}
	for _, c := range categories {
		for _, d := range dates {
			for _, pinned := range []bool{false, true} {
				for _, approved := range []bool{false, true} {
					p := CalculatePriority(PriorityInput{Category: c, IsPinned: pinned, IsApproved: approved, Date: d}, 365, now)
					if p.TypeContribution < 0 || p.TypeContribution > 1.2 {
						t.Errorf("type contribution out of range: %+v", p)
					}
					if p.ApprovalContribution < 0 || p.ApprovalContribution > 1 {
						t.Errorf("approval contribution out of range: %+v", p)
					}
					if p.RecencyContribution < 0 || p.RecencyContribution > 1 {
						t.Errorf("recency contribution out of range for %q: %+v", d, p)
					}
					if p.RecencyWeight < 0 || p.RecencyWeight > 1 {
						t.Errorf("recency weight out of range for %q: %+v", d, p)
					}
				}
			}
		}
	}
}

func TestInputFromMetadata(t *testing.T) {
	in := InputFromMetadata(map[string]interface{}{
		"source_type": "whatsapp",
		"is_pinned":   "true",
		"is_approved": 1,
		"indexed_at":  "2024-01-02T03:04:05",
	})
	if in.Category != "whatsapp" || !in.IsPinned || !in.IsApproved || in.Date != "2024-01-02T03:04:05" {
		t.Errorf("unexpected input: %+v", in)
	}

	in = InputFromMetadata(map[string]interface{}{
		"document_category": "decision",
		"source_type":       "text",
		"date":              "2023-05-01",
		"indexed_at":        "2024-01-02T03:04:05",
	})
	if in.Category != "decision" || in.Date != "2023-05-01" {
		t.Errorf("document_category and date should win: %+v", in)
	}

	if in := InputFromMetadata(nil); in.Category != "note" {
		t.Errorf("empty metadata should default to note, got %q", in.Category)
	}
}

func TestPriorityFromMetadata_ExportSources(t *testing.T) {
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, time.Local)
	tests := []struct {
		sourceType, category string
		want                 int
	}{
		{"profile", "profile", 120},
		{"contacts", "contact", 40},
		{"contacts", "", 40},
		{"interests", "interests", 25},
		{"location", "location", 20},
		{"search_history", "search_history", 10},
		{"whatsapp", "", 30},
	}
	for _, tt := range tests {
		md := map[string]interface{}{"source_type": tt.sourceType, "date": "2024-03-01T10:00:00"}
		if tt.category != "" {
			md["document_category"] = tt.category
		}
		if got := PriorityFromMetadata(md, 365, now).TypeWeight; got != tt.want {
			t.Errorf("type weight for %s/%s = %d, want %d", tt.sourceType, tt.category, got, tt.want)
		}
	}
}
