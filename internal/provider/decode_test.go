package provider

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestGreedyDecode_MaxLengthCountsBOS(t *testing.T) {
	calls := 0
	got, err := greedyDecode(context.Background(), 100, 102, 5, func(prefix []int64) (int64, error) {
		calls++
		return int64(len(prefix)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int64{1, 2, 3, 4}) {
		t.Errorf("tokens = %v, want 4 generated tokens", got)
	}
	if calls != 4 {
		t.Errorf("decoder calls = %d, want 4", calls)
	}
}

func TestGreedyDecode_StopsAtEOS(t *testing.T) {
	seq := []int64{7, 8, 102, 9}
	got, err := greedyDecode(context.Background(), 100, 102, 50, func(prefix []int64) (int64, error) {
		return seq[len(prefix)-1], nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int64{7, 8}) {
		t.Errorf("tokens = %v", got)
	}
}

func TestGreedyDecode_Errors(t *testing.T) {
	boom := errors.New("decoder failed")
	if _, err := greedyDecode(context.Background(), 1, 2, 10, func([]int64) (int64, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want decoder error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := greedyDecode(ctx, 1, 2, 10, func([]int64) (int64, error) {
		return 3, nil
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
