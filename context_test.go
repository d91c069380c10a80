package annex

import (
	"context"
	"testing"

	"github.com/xraph/annex/extension"
)

func TestOwnerFromContext(t *testing.T) {
	if o := OwnerFromContext(context.Background()); o.UserID != "" || o.OrganizationID != "" {
		t.Errorf("empty context owner = %+v", o)
	}

	ctx := WithOwner(context.Background(), "u1", "org1")
	o := OwnerFromContext(ctx)
	if o.UserID != "u1" || o.OrganizationID != "org1" {
		t.Errorf("owner = %+v", o)
	}
}

func TestCanAccess(t *testing.T) {
	ext := &extension.Extension{UserID: "u1", OrganizationID: "org1"}
	personal := &extension.Extension{UserID: "u1"}

	tests := []struct {
		name  string
		owner Owner
		ext   *extension.Extension
		want  bool
	}{
		{"owning user", Owner{UserID: "u1"}, ext, true},
		{"same org", Owner{UserID: "u2", OrganizationID: "org1"}, ext, true},
		{"other org", Owner{UserID: "u2", OrganizationID: "org2"}, ext, false},
		{"empty org never matches", Owner{UserID: "u2"}, personal, false},
		{"anonymous", Owner{}, ext, false},
		{"nil extension", Owner{UserID: "u1"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccess(tt.owner, tt.ext); got != tt.want {
				t.Errorf("CanAccess = %v, want %v", got, tt.want)
			}
		})
	}
}
