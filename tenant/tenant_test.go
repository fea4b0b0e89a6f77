package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithOrganization(t *testing.T) {
	ctx := WithOrganization(context.Background(), "org-42")

	id, ok := OrganizationID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "org-42", id)
}

func TestOrganizationIDUnset(t *testing.T) {
	id, ok := OrganizationID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestOrganizationIDEmpty(t *testing.T) {
	ctx := WithOrganization(context.Background(), "")
	_, ok := OrganizationID(ctx)
	assert.False(t, ok)
}

func TestNestedContextsAreIsolated(t *testing.T) {
	parent := WithOrganization(context.Background(), "org-a")
	child := WithOrganization(parent, "org-b")

	id, _ := OrganizationID(parent)
	assert.Equal(t, "org-a", id)

	id, _ = OrganizationID(child)
	assert.Equal(t, "org-b", id)
}
