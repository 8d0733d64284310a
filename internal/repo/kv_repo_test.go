package repo

import (
	"context"
	"errors"
	"testing"
)

func TestKV_PutGetOverwriteDelete(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := GetValue(ctx, db, "u1_posts"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err = %v", err)
	}
	if err := PutValue(ctx, db, "u1_posts", `{"all":[]}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := PutValue(ctx, db, "u1_posts", `{"all":[1]}`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := GetValue(ctx, db, "u1_posts")
	if err != nil || v != `{"all":[1]}` {
		t.Fatalf("get = %q, %v", v, err)
	}
	if err := DeleteValue(ctx, db, "u1_posts"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteValue(ctx, db, "u1_posts"); err != nil {
		t.Fatalf("deleting twice must not fail: %v", err)
	}
	if _, err := GetValue(ctx, db, "u1_posts"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete err = %v", err)
	}
}
