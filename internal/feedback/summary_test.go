package feedback

import "testing"

func rec(kind Kind, outputID string) Record {
	return Record{OutputID: outputID, Kind: kind, OutputKind: OutputSimilarity}
}

func TestDisagreementRateFourNegativeOfTen(t *testing.T) {
	var records []Record
	for i := 0; i < 4; i++ {
		records = append(records, rec(KindDisagree, "o1"))
	}
	for i := 0; i < 6; i++ {
		records = append(records, rec(KindAgree, "o1"))
	}
	got := DisagreementRate(records)
	if got != 0.4 {
		t.Fatalf("expected 0.4, got %v", got)
	}
}

func TestDisagreementRateExcludesReviewKinds(t *testing.T) {
	records := []Record{
		rec(KindDisagree, "o1"),
		rec(KindHelpful, "o1"),
		rec(KindNeedsRevision, "o1"),
		rec(KindNeedsExpert, "o1"),
	}
	// NEEDS_* rows never enter the ratio: 1 negative of 2 qualifying.
	got := DisagreementRate(records)
	if got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestDisagreementRateEmptyIsZero(t *testing.T) {
	if got := DisagreementRate(nil); got != 0.0 {
		t.Fatalf("expected 0.0, got %v", got)
	}
	onlyReview := []Record{rec(KindNeedsExpert, "o1"), rec(KindNeedsRevision, "o1")}
	if got := DisagreementRate(onlyReview); got != 0.0 {
		t.Fatalf("expected 0.0 with no qualifying records, got %v", got)
	}
}

func TestSummarizeCountsEveryRow(t *testing.T) {
	records := []Record{
		rec(KindHelpful, "o1"),
		rec(KindNotHelpful, "o1"),
		rec(KindAgree, "o1"),
		rec(KindDisagree, "o1"),
		rec(KindDisagree, "o1"),
		rec(KindNeedsRevision, "o1"),
		rec(KindNeedsExpert, "o1"),
	}
	records[0].Comment = "useful"
	s := Summarize("o1", records)
	if s.Total != 7 {
		t.Fatalf("expected total 7, got %d", s.Total)
	}
	if s.Disagree != 2 || s.NeedsRevision != 1 || s.NeedsExpert != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	// 3 negative of 5 qualifying.
	if s.DisagreementRate != 0.6 {
		t.Fatalf("expected rate 0.6, got %v", s.DisagreementRate)
	}
	if len(s.Comments) != 1 || s.Comments[0] != "useful" {
		t.Fatalf("unexpected comments: %v", s.Comments)
	}
}

func TestSummarizeRepeatedDisagreementIsRepeatedRows(t *testing.T) {
	var records []Record
	for i := 0; i < 25; i++ {
		records = append(records, rec(KindDisagree, "o1"))
	}
	s := Summarize("o1", records)
	if s.Disagree != 25 || s.Total != 25 {
		t.Fatalf("expected all 25 disagreements preserved, got %+v", s)
	}
	if s.DisagreementRate != 1.0 {
		t.Fatalf("expected rate 1.0, got %v", s.DisagreementRate)
	}
}

func TestSummarizeProjectStats(t *testing.T) {
	records := []Record{
		rec(KindAgree, "o1"),
		rec(KindAgree, "o1"),
		rec(KindDisagree, "o2"),
		rec(KindDisagree, "o2"),
		rec(KindNeedsExpert, "o3"),
	}
	s := SummarizeProject("p1", records)
	if s.TotalFeedback != 5 {
		t.Fatalf("expected 5 records, got %d", s.TotalFeedback)
	}
	if s.OutputsRated != 3 {
		t.Fatalf("expected 3 outputs, got %d", s.OutputsRated)
	}
	if s.NeedsReview != 1 {
		t.Fatalf("expected 1 needs-review, got %d", s.NeedsReview)
	}
	if s.DisagreementRate != 0.5 {
		t.Fatalf("expected overall rate 0.5, got %v", s.DisagreementRate)
	}
	// Per-output rates are 0.0, 1.0, 0.0; the worst output should show.
	if s.MaxOutputDisagreement != 1.0 {
		t.Fatalf("expected max output rate 1.0, got %v", s.MaxOutputDisagreement)
	}
}

func TestKindValidation(t *testing.T) {
	valid := []Kind{KindHelpful, KindNotHelpful, KindAgree, KindDisagree, KindNeedsRevision, KindNeedsExpert}
	for _, k := range valid {
		if !k.Valid() {
			t.Fatalf("%s should be valid", k)
		}
	}
	if Kind("SOMEWHAT_AGREE").Valid() {
		t.Fatal("unknown kind must not validate")
	}
	if OutputKind("POEM").Valid() {
		t.Fatal("unknown output kind must not validate")
	}
}

func TestHashSubmitterStableAndShort(t *testing.T) {
	a := HashSubmitter("10.1.2.3")
	b := HashSubmitter("10.1.2.3")
	if a != b {
		t.Fatal("hash should be stable")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char hash, got %d", len(a))
	}
	if HashSubmitter("") != "" {
		t.Fatal("empty identity hashes to empty")
	}
}
