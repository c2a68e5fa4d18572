package translate

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/batch"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/dom"
	"github.com/MikkoParkkola/translate-browser-extension-sub004/glossary"
)

func testBatch(texts ...string) batch.Batch {
	return batch.Batch{
		Nodes:    make([]dom.Node, len(texts)),
		Texts:    texts,
		Restores: make([]glossary.RestoreFunc, len(texts)),
	}
}

// countingWrite counts texts handed to the write callback as written.
func countingWrite(calls *int) WriteFunc {
	return func(ctx context.Context, b batch.Batch, texts []string) (int, int) {
		*calls++
		return len(texts), 0
	}
}

func TestTranslateBatchTransientRetries(t *testing.T) {
	calls := 0
	tr := Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("network timeout")
		}
		out := make([]string, len(texts))
		for i, s := range texts {
			out[i] = "fr:" + s
		}
		return out, nil
	})

	writes := 0
	exec := NewExecutor(Config{
		Translator:  tr,
		Write:       countingWrite(&writes),
		BackoffBase: time.Millisecond,
	})
	res := exec.TranslateBatch(context.Background(), testBatch("a", "b"), Params{}, 2)

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if writes != 1 {
		t.Errorf("writes = %d, want 1", writes)
	}
	if res.Translated != 2 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestTranslateBatchTransientExhausted(t *testing.T) {
	calls := 0
	tr := Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
		calls++
		return nil, errors.New("service unavailable")
	})
	writes := 0
	exec := NewExecutor(Config{
		Translator:  tr,
		Write:       countingWrite(&writes),
		BackoffBase: time.Millisecond,
	})
	res := exec.TranslateBatch(context.Background(), testBatch("a", "b", "c"), Params{}, 2)

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if writes != 0 {
		t.Errorf("writes = %d, want 0", writes)
	}
	if res.Failed != 3 || res.Translated != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestTranslateBatchPermanentNoRetry(t *testing.T) {
	calls := 0
	tr := Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
		calls++
		return nil, &ErrUnsupportedPair{SourceLang: "en", TargetLang: "xx"}
	})
	writes := 0
	exec := NewExecutor(Config{Translator: tr, Write: countingWrite(&writes)})
	res := exec.TranslateBatch(context.Background(), testBatch("a", "b"), Params{}, 3)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if writes != 0 {
		t.Errorf("writes = %d, want 0", writes)
	}
	if res.Failed != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestTranslateBatchLengthMismatchIsPermanent(t *testing.T) {
	calls := 0
	tr := Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
		calls++
		return []string{"only one"}, nil
	})
	writes := 0
	exec := NewExecutor(Config{Translator: tr, Write: countingWrite(&writes)})
	res := exec.TranslateBatch(context.Background(), testBatch("a", "b"), Params{}, 3)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if res.Failed != 2 || writes != 0 {
		t.Errorf("result = %+v, writes = %d", res, writes)
	}
}

func TestTranslateBatchGlossaryRestore(t *testing.T) {
	b := testBatch("⟦0⟧ is great")
	b.Restores[0] = func(s string) string {
		return "Go" + s[len("⟦0⟧"):]
	}
	var got string
	exec := NewExecutor(Config{
		Translator: Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
			return append([]string(nil), texts...), nil
		}),
		Write: func(ctx context.Context, bb batch.Batch, texts []string) (int, int) {
			got = texts[0]
			return len(texts), 0
		},
	})
	exec.TranslateBatch(context.Background(), b, Params{}, 0)
	if got != "Go is great" {
		t.Errorf("restored text = %q", got)
	}
}

func TestTranslateBatchBreakerOpen(t *testing.T) {
	calls := 0
	br := NewBreaker(WithBreakerThreshold(1))
	br.RecordFailure()
	exec := NewExecutor(Config{
		Translator: Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
			calls++
			return texts, nil
		}),
		Write:   countingWrite(new(int)),
		Breaker: br,
	})
	res := exec.TranslateBatch(context.Background(), testBatch("a"), Params{}, 3)

	if calls != 0 {
		t.Errorf("calls = %d, want 0 with breaker open", calls)
	}
	if res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestTranslateBatchEmpty(t *testing.T) {
	calls := 0
	exec := NewExecutor(Config{
		Translator: Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
			calls++
			return texts, nil
		}),
		Write: countingWrite(new(int)),
	})
	res := exec.TranslateBatch(context.Background(), batch.Batch{}, Params{}, 3)
	if calls != 0 || res != (Result{}) {
		t.Errorf("calls = %d, result = %+v", calls, res)
	}
}

func TestRunAggregates(t *testing.T) {
	var calls atomic.Int32
	exec := NewExecutor(Config{
		Translator: Func(func(ctx context.Context, texts []string, p Params) ([]string, error) {
			calls.Add(1)
			return append([]string(nil), texts...), nil
		}),
		Write: func(ctx context.Context, b batch.Batch, texts []string) (int, int) {
			return len(texts), 0
		},
	})
	batches := []batch.Batch{testBatch("a", "b"), testBatch("c"), testBatch("d", "e")}
	res := exec.Run(context.Background(), batches, Params{}, 0, 2)

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if res.Translated != 5 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{&ErrUnsupportedPair{SourceLang: "en", TargetLang: "xx"}, ClassPermanent},
		{&ErrMalformedResult{Want: 2, Got: 1}, ClassPermanent},
		{errors.New("connection reset by peer"), ClassTransient},
		{errors.New("request timed out"), ClassTransient},
		{errors.New("HTTP 503 from upstream"), ClassTransient},
		{errors.New("unsupported language pair"), ClassPermanent},
		{errors.New("bad request"), ClassPermanent},
		{context.Canceled, ClassTransient},
		{context.DeadlineExceeded, ClassTransient},
		{errors.New("something entirely unknown"), ClassTransient},
	}
	for _, tc := range tests {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestBreakerLifecycle(t *testing.T) {
	now := time.Unix(0, 0)
	br := NewBreaker(
		WithBreakerThreshold(2),
		WithBreakerResetTimeout(10*time.Second),
		WithBreakerClock(func() time.Time { return now }),
	)

	if br.State() != BreakerClosed {
		t.Fatal("new breaker not closed")
	}
	br.RecordFailure()
	if br.State() != BreakerClosed {
		t.Error("tripped below threshold")
	}
	br.RecordFailure()
	if br.State() != BreakerOpen || br.Allow() {
		t.Error("breaker not open after threshold failures")
	}

	now = now.Add(10 * time.Second)
	if !br.Allow() || br.State() != BreakerHalfOpen {
		t.Error("breaker not half-open after reset timeout")
	}

	br.RecordSuccess()
	if br.State() != BreakerHalfOpen {
		t.Error("closed after one half-open success")
	}
	br.RecordSuccess()
	if br.State() != BreakerClosed {
		t.Error("not closed after enough half-open successes")
	}

	// A half-open failure reopens immediately.
	br.RecordFailure()
	br.RecordFailure()
	now = now.Add(10 * time.Second)
	_ = br.Allow() // half-open
	br.RecordFailure()
	if br.State() != BreakerOpen {
		t.Error("half-open failure did not reopen")
	}
}

func TestTextJSON(t *testing.T) {
	// Batches marshal as arrays, single texts as bare strings.
	data, err := json.Marshal(Text{Values: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["a","b"]` {
		t.Errorf("batch form = %s", data)
	}

	data, err = json.Marshal(Text{Values: []string{"a"}, Single: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"a"` {
		t.Errorf("single form = %s", data)
	}

	var tx Text
	if err := json.Unmarshal([]byte(`"hello"`), &tx); err != nil {
		t.Fatal(err)
	}
	if !tx.Single || len(tx.Values) != 1 || tx.Values[0] != "hello" {
		t.Errorf("unmarshal single = %+v", tx)
	}
	if err := json.Unmarshal([]byte(`["x","y"]`), &tx); err != nil {
		t.Fatal(err)
	}
	if tx.Single || len(tx.Values) != 2 {
		t.Errorf("unmarshal batch = %+v", tx)
	}
}

func TestNewBatchRequest(t *testing.T) {
	req := NewBatchRequest([]string{"hello"}, Params{
		SourceLang: "en", TargetLang: "fr", Strategy: "smart", Provider: "p1",
	})
	if req.Type != "translate" || req.SourceLang != "en" || req.TargetLang != "fr" {
		t.Errorf("request = %+v", req)
	}
	if req.Options.Strategy != "smart" || req.Provider != "p1" {
		t.Errorf("options = %+v provider = %q", req.Options, req.Provider)
	}
	if req.Text.Single {
		t.Error("batch request marked single")
	}
}
