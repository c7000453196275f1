package rtree

import "testing"

func TestEncodeDecodeMatchArgRoundTrip(t *testing.T) {
	blob, err := EncodeMatchArg("circle", []float64{5, 5, 2}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("EncodeMatchArg: %v", err)
	}
	arg, err := DecodeMatchArg(blob)
	if err != nil {
		t.Fatalf("DecodeMatchArg: %v", err)
	}
	defer arg.Release()

	if len(arg.Params) != 3 || arg.Params[0] != 1 || arg.Params[1] != 2 || arg.Params[2] != 3 {
		t.Fatalf("params = %v, want [1 2 3]", arg.Params)
	}
	ctx, ok := arg.Ctx.([]float64)
	if !ok || ctx[0] != 5 || ctx[1] != 5 || ctx[2] != 2 {
		t.Fatalf("ctx = %v, want [5 5 2]", arg.Ctx)
	}
	if arg.Fn == nil {
		t.Fatal("expected resolved geometry function, got nil")
	}
}

func TestDecodeMatchArgRejectsBadMagic(t *testing.T) {
	blob, err := EncodeMatchArg("circle", nil, nil)
	if err != nil {
		t.Fatalf("EncodeMatchArg: %v", err)
	}
	blob[0] ^= 0xff
	if _, err := DecodeMatchArg(blob); !Is(err, KindArgument) {
		t.Fatalf("expected KindArgument for bad magic, got %v", err)
	}
}

func TestDecodeMatchArgRejectsTruncated(t *testing.T) {
	blob, err := EncodeMatchArg("circle", nil, []float64{1, 2})
	if err != nil {
		t.Fatalf("EncodeMatchArg: %v", err)
	}
	if _, err := DecodeMatchArg(blob[:len(blob)-4]); !Is(err, KindArgument) {
		t.Fatalf("expected KindArgument for truncated blob, got %v", err)
	}
}

func TestEncodeMatchArgUnknownCallback(t *testing.T) {
	if _, err := EncodeMatchArg("does-not-exist", nil, nil); !Is(err, KindArgument) {
		t.Fatalf("expected KindArgument for unregistered callback, got %v", err)
	}
}

func TestMatchArgReleaseIsIdempotent(t *testing.T) {
	blob, err := EncodeMatchArg("circle", "ctx-value", nil)
	if err != nil {
		t.Fatalf("EncodeMatchArg: %v", err)
	}
	arg, err := DecodeMatchArg(blob)
	if err != nil {
		t.Fatalf("DecodeMatchArg: %v", err)
	}
	arg.Release()
	arg.Release() // must not panic or double-free a handle slot
}

func TestCircleMatch(t *testing.T) {
	ctx := []float64{0, 0, 5}
	box := []float64{1, 2, 1, 2} // fully inside the circle
	ok, err := circleMatch(ctx, 2, box)
	if err != nil {
		t.Fatalf("circleMatch: %v", err)
	}
	if !ok {
		t.Fatal("expected box inside circle to match")
	}

	far := []float64{100, 101, 100, 101}
	ok, err = circleMatch(ctx, 2, far)
	if err != nil {
		t.Fatalf("circleMatch: %v", err)
	}
	if ok {
		t.Fatal("expected distant box to not match")
	}
}

func TestCircleMatchRejectsWrongShape(t *testing.T) {
	if _, err := circleMatch([]float64{0, 0}, 2, []float64{1, 2, 1, 2}); err == nil {
		t.Fatal("expected error for malformed circle context")
	}
	if _, err := circleMatch([]float64{0, 0, 5}, 3, []float64{1, 2, 1, 2, 1, 2}); err == nil {
		t.Fatal("expected error for non-2D circle match")
	}
}

func TestRegisterGeometryCallbackRejectsEmptyName(t *testing.T) {
	if err := RegisterGeometryCallback("", func(interface{}, int, []float64) (bool, error) {
		return true, nil
	}); !Is(err, KindArgument) {
		t.Fatalf("expected KindArgument for empty name, got %v", err)
	}
}

func TestRegisterGeometryCallbackOverride(t *testing.T) {
	called := false
	if err := RegisterGeometryCallback("always-true", func(interface{}, int, []float64) (bool, error) {
		called = true
		return true, nil
	}); err != nil {
		t.Fatalf("RegisterGeometryCallback: %v", err)
	}
	blob, err := EncodeMatchArg("always-true", nil, nil)
	if err != nil {
		t.Fatalf("EncodeMatchArg: %v", err)
	}
	arg, err := DecodeMatchArg(blob)
	if err != nil {
		t.Fatalf("DecodeMatchArg: %v", err)
	}
	defer arg.Release()
	ok, err := arg.Fn(arg.Ctx, 2, []float64{0, 1, 0, 1})
	if err != nil || !ok || !called {
		t.Fatalf("registered callback not invoked correctly: ok=%v err=%v called=%v", ok, err, called)
	}
}
