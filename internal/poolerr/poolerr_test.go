package poolerr_test

import (
	"testing"

	"github.com/jroosing/poolnetd/internal/poolerr"
	"github.com/stretchr/testify/assert"
)

func TestSetGetClear(t *testing.T) {
	poolerr.Clear()
	assert.Equal(t, poolerr.NoError, poolerr.Get().Kind)

	poolerr.Set("pool.Resize", poolerr.ConnListFull, "cannot downsize: live connections exceed target")
	rec := poolerr.Get()
	assert.Equal(t, poolerr.ConnListFull, rec.Kind)
	assert.Equal(t, "pool.Resize", rec.Site)
	assert.Contains(t, poolerr.GetString(), "CONNLIST_FULL")

	poolerr.Clear()
	assert.Equal(t, poolerr.NoError, poolerr.Get().Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "LOCKED", poolerr.Locked.String())
	assert.Equal(t, "ACCEPT_DENIED", poolerr.AcceptDenied.String())
}
