package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fresch-tutor/internal/modules/tutor/domain"
)

func TestNewTutorUseCase(t *testing.T) {
	tr := &MockTranscriber{}
	cl := &MockClassifier{}
	uc, _ := newTestUseCase(tr, cl, NewMockCacheStore(), 3)

	if uc == nil {
		t.Fatal("Expected non-nil usecase")
	}
	if got := uc.GetProviderName(); got != "Mock Transcriber / Mock Classifier" {
		t.Errorf("GetProviderName() = %q", got)
	}
}

func TestTutorUseCase_Process_HaseExample(t *testing.T) {
	tr := &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, imageData []byte) (string, error) {
			return "Der Hase leuft schnel.", nil
		},
	}
	var gotPrompt string
	cl := &MockClassifier{
		ClassifyFunc: func(ctx context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return `[
				{"wort":"Hase","fehler":false},
				{"wort":"leuft","fehler":true,"regel":"Ableiten","erklaerung":"laufen → läuft"},
				{"wort":"schnel","fehler":true,"regel":"Stopp-Regel","erklaerung":"Nach kurzem Vokal: Doppelkonsonant"}
			]`, nil
		},
	}
	uc, _ := newTestUseCase(tr, cl, NewMockCacheStore(), 3)

	got, err := uc.Process(context.Background(), testImage(t, 1))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got.Transcript != "Der Hase leuft schnel." {
		t.Errorf("Transcript = %q", got.Transcript)
	}
	want := []domain.ClassificationItem{
		{Word: "Hase", HasError: false},
		{Word: "leuft", HasError: true, Strategy: domain.StrategyAbleiten, Explanation: "laufen → läuft"},
		{Word: "schnel", HasError: true, Strategy: domain.StrategyStoppRegel, Explanation: "Nach kurzem Vokal: Doppelkonsonant"},
	}
	if len(got.Items) != len(want) {
		t.Fatalf("len(Items) = %d, want %d", len(got.Items), len(want))
	}
	for i := range want {
		if got.Items[i] != want[i] {
			t.Errorf("Items[%d] = %+v, want %+v", i, got.Items[i], want[i])
		}
	}
	if !strings.Contains(gotPrompt, "Der Hase leuft schnel.") {
		t.Error("prompt does not embed the transcript")
	}
}

// 同じ画像を2回処理すると、文字起こしは1回だけ呼ばれ、分類は2回呼ばれる
func TestTutorUseCase_Process_CacheHit(t *testing.T) {
	tr := &MockTranscriber{}
	cl := &MockClassifier{}
	store := NewMockCacheStore()
	uc, _ := newTestUseCase(tr, cl, store, 3)
	img := testImage(t, 7)

	first, err := uc.Process(context.Background(), img)
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	second, err := uc.Process(context.Background(), img)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if tr.Calls() != 1 {
		t.Errorf("transcriber calls = %d, want 1", tr.Calls())
	}
	if cl.Calls() != 2 {
		t.Errorf("classifier calls = %d, want 2", cl.Calls())
	}
	if first.Transcript != second.Transcript {
		t.Errorf("transcripts differ: %q vs %q", first.Transcript, second.Transcript)
	}

	// 別の画像はキャッシュされていない
	if _, err := uc.Process(context.Background(), testImage(t, 8)); err != nil {
		t.Fatalf("third Process() error = %v", err)
	}
	if tr.Calls() != 2 {
		t.Errorf("transcriber calls = %d, want 2", tr.Calls())
	}
}

// k回レート制限された後に成功すると、k+1回呼ばれ、待機合計は2+4+...+2^k秒
func TestTutorUseCase_Process_RateLimitedThenSuccess(t *testing.T) {
	for k := 0; k <= 2; k++ {
		tr := &MockTranscriber{}
		calls := 0
		tr.TranscribeFunc = func(ctx context.Context, imageData []byte) (string, error) {
			calls++
			if calls <= k {
				return "", rateLimitedErr()
			}
			return "Hase", nil
		}
		uc, sleeper := newTestUseCase(tr, &MockClassifier{}, NewMockCacheStore(), 3)

		if _, err := uc.Process(context.Background(), testImage(t, 1)); err != nil {
			t.Fatalf("k=%d: Process() error = %v", k, err)
		}
		if calls != k+1 {
			t.Errorf("k=%d: transcriber calls = %d, want %d", k, calls, k+1)
		}
		var want time.Duration
		for i := 1; i <= k; i++ {
			want += (2 * time.Second) << (i - 1)
		}
		if got := sleeper.Total(); got != want {
			t.Errorf("k=%d: total backoff = %v, want %v", k, got, want)
		}
	}
}

// 常にレート制限されると、max_attempts回で諦めてRateLimitedを返す
func TestTutorUseCase_Process_RateLimitedExhausted(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
	}{
		{"正常系: 上限3", 3},
		{"正常系: 上限5", 5},
		{"境界値: 上限1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &MockTranscriber{
				TranscribeFunc: func(ctx context.Context, imageData []byte) (string, error) {
					return "", rateLimitedErr()
				},
			}
			cl := &MockClassifier{}
			uc, _ := newTestUseCase(tr, cl, NewMockCacheStore(), tt.maxAttempts)

			_, err := uc.Process(context.Background(), testImage(t, 1))
			f, ok := domain.AsFailure(err)
			if !ok {
				t.Fatalf("error = %v, want *domain.Failure", err)
			}
			if f.Kind != domain.FailureRateLimited {
				t.Errorf("Kind = %s, want RateLimited", f.Kind)
			}
			if f.Attempts != tt.maxAttempts {
				t.Errorf("Attempts = %d, want %d", f.Attempts, tt.maxAttempts)
			}
			if tr.Calls() != tt.maxAttempts {
				t.Errorf("transcriber calls = %d, want %d", tr.Calls(), tt.maxAttempts)
			}
			if cl.Calls() != 0 {
				t.Errorf("classifier calls = %d, want 0", cl.Calls())
			}
		})
	}
}

// 空白のみの文字起こしはNoTextDetectedで、分類は呼ばれない
func TestTutorUseCase_Process_NoText(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{"境界値: 空白と改行", " \n\t ", nil},
		{"境界値: 空文字列", "", nil},
		{"境界値: アダプターが文字なしを返す", "", domain.ErrNoTextFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &MockTranscriber{
				TranscribeFunc: func(ctx context.Context, imageData []byte) (string, error) {
					return tt.text, tt.err
				},
			}
			cl := &MockClassifier{}
			uc, sleeper := newTestUseCase(tr, cl, NewMockCacheStore(), 3)

			_, err := uc.Process(context.Background(), testImage(t, 1))
			if !domain.IsFailureKind(err, domain.FailureNoTextDetected) {
				t.Fatalf("error = %v, want NoTextDetected", err)
			}
			if cl.Calls() != 0 {
				t.Errorf("classifier calls = %d, want 0", cl.Calls())
			}
			if tr.Calls() != 1 {
				t.Errorf("transcriber calls = %d, want 1", tr.Calls())
			}
			if len(sleeper.Delays()) != 0 {
				t.Errorf("slept %v, want none", sleeper.Delays())
			}
		})
	}
}

// 分類結果がJSON配列でなければMalformedClassificationで、再試行しない
func TestTutorUseCase_Process_MalformedClassification(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"異常系: 散文", "Im Text sind zwei Fehler: leuft und schnel."},
		{"異常系: 壊れたJSON", `[{"wort":"Hase","fehler":`},
		{"異常系: 未知のストラテジー", `[{"wort":"leuft","fehler":true,"regel":"Großschreibung"}]`},
		{"異常系: null", "null"},
		{"境界値: 空の応答", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl := &MockClassifier{
				ClassifyFunc: func(ctx context.Context, prompt string) (string, error) {
					return tt.reply, nil
				},
			}
			uc, _ := newTestUseCase(&MockTranscriber{}, cl, NewMockCacheStore(), 3)

			_, err := uc.Process(context.Background(), testImage(t, 1))
			if !domain.IsFailureKind(err, domain.FailureMalformedClassification) {
				t.Fatalf("error = %v, want MalformedClassification", err)
			}
			if cl.Calls() != 1 {
				t.Errorf("classifier calls = %d, want 1", cl.Calls())
			}
		})
	}
}

func TestTutorUseCase_Process_TransportErrors(t *testing.T) {
	t.Run("異常系: 文字起こしの通信エラー", func(t *testing.T) {
		tr := &MockTranscriber{
			TranscribeFunc: func(ctx context.Context, imageData []byte) (string, error) {
				return "", errors.New("claude: API returned status 500")
			},
		}
		cl := &MockClassifier{}
		store := NewMockCacheStore()
		uc, _ := newTestUseCase(tr, cl, store, 3)

		_, err := uc.Process(context.Background(), testImage(t, 1))
		if !domain.IsFailureKind(err, domain.FailureTranscriptionError) {
			t.Fatalf("error = %v, want TranscriptionError", err)
		}
		if tr.Calls() != 1 {
			t.Errorf("transcriber calls = %d, want 1", tr.Calls())
		}
		if store.Len() != 0 {
			t.Error("failure must not be cached")
		}
	})

	t.Run("異常系: 分類のレート制限が続く", func(t *testing.T) {
		cl := &MockClassifier{
			ClassifyFunc: func(ctx context.Context, prompt string) (string, error) {
				return "", rateLimitedErr()
			},
		}
		uc, sleeper := newTestUseCase(&MockTranscriber{}, cl, NewMockCacheStore(), 3)

		_, err := uc.Process(context.Background(), testImage(t, 1))
		if !domain.IsFailureKind(err, domain.FailureRateLimited) {
			t.Fatalf("error = %v, want RateLimited", err)
		}
		if cl.Calls() != 3 {
			t.Errorf("classifier calls = %d, want 3", cl.Calls())
		}
		if got := sleeper.Total(); got != 6*time.Second {
			t.Errorf("total backoff = %v, want 6s", got)
		}
	})

	t.Run("異常系: 分類の通信エラー", func(t *testing.T) {
		cl := &MockClassifier{
			ClassifyFunc: func(ctx context.Context, prompt string) (string, error) {
				return "", errors.New("openai: chat completion: 500")
			},
		}
		uc, _ := newTestUseCase(&MockTranscriber{}, cl, NewMockCacheStore(), 3)

		_, err := uc.Process(context.Background(), testImage(t, 1))
		if !domain.IsFailureKind(err, domain.FailureTranscriptionError) {
			t.Fatalf("error = %v, want TranscriptionError", err)
		}
	})
}

// 同じ画像を処理中の別リクエストがキャンセルされても、残りのリクエストは成功する
func TestTutorUseCase_Process_ConcurrentCallerCancelled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tr := &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, imageData []byte) (string, error) {
			close(started)
			select {
			case <-release:
				return "Der Hase leuft schnel.", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	cl := &MockClassifier{}
	store := NewMockCacheStore()
	uc, _ := newTestUseCase(tr, cl, store, 3)
	img := testImage(t, 7)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	doneA := make(chan error, 1)
	go func() {
		_, err := uc.Process(ctxA, img)
		doneA <- err
	}()
	<-started

	type outcome struct {
		analysis *domain.Analysis
		err      error
	}
	doneB := make(chan outcome, 1)
	go func() {
		a, err := uc.Process(context.Background(), img)
		doneB <- outcome{a, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case err := <-doneA:
		if !domain.IsFailureKind(err, domain.FailureTranscriptionError) || !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled request error = %v, want TranscriptionError wrapping context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request did not return")
	}

	close(release)

	select {
	case got := <-doneB:
		if got.err != nil {
			t.Fatalf("independent request error = %v", got.err)
		}
		if got.analysis.Transcript != "Der Hase leuft schnel." {
			t.Errorf("Transcript = %q", got.analysis.Transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("independent request did not return")
	}

	if tr.Calls() != 1 {
		t.Errorf("transcriber calls = %d, want 1", tr.Calls())
	}
}

func TestTutorUseCase_Process_InvalidImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"異常系: 空データ", nil},
		{"異常系: 画像でない", []byte("hello")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &MockTranscriber{}
			uc, _ := newTestUseCase(tr, &MockClassifier{}, NewMockCacheStore(), 3)

			_, err := uc.Process(context.Background(), tt.data)
			if !domain.IsFailureKind(err, domain.FailureTranscriptionError) {
				t.Fatalf("error = %v, want TranscriptionError", err)
			}
			if !errors.Is(err, domain.ErrInvalidImage) {
				t.Errorf("error = %v, want ErrInvalidImage in chain", err)
			}
			if tr.Calls() != 0 {
				t.Errorf("transcriber calls = %d, want 0", tr.Calls())
			}
		})
	}
}

func TestBuildClassificationPrompt(t *testing.T) {
	prompt := BuildClassificationPrompt("Der Hase leuft")

	if !strings.Contains(prompt, "Der Hase leuft") {
		t.Error("prompt does not contain transcript")
	}
	for _, s := range domain.Strategies {
		if !strings.Contains(prompt, s.String()) {
			t.Errorf("prompt does not list strategy %q", s)
		}
	}
	if !strings.Contains(prompt, "Silbe klatschen | Weiterschwingen | Stopp-Regel | Ableiten | Merkwort") {
		t.Error("prompt does not contain the label list")
	}
}
