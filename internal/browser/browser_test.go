package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery/crawler/internal/recovery"
)

func TestPopupScriptEmbedsSelectors(t *testing.T) {
	script, err := popupScript([]string{"button#onetrust-accept-btn-handler", "[data-auto-id='privacy-accept-all']"})
	require.NoError(t, err)

	assert.Contains(t, script, `"button#onetrust-accept-btn-handler"`)
	assert.Contains(t, script, `"[data-auto-id='privacy-accept-all']"`)
	assert.Contains(t, script, "return clicked;")
}

func TestClassify(t *testing.T) {
	err := classify("navigate", context.DeadlineExceeded)
	assert.Equal(t, recovery.CategoryTimeout, recovery.CategoryOf(err))

	err = classify("navigate", errors.New("net::ERR_CONNECTION_RESET"))
	assert.Equal(t, recovery.CategoryNetwork, recovery.CategoryOf(err))

	err = classify("navigate", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, recovery.CategoryUnknown, recovery.CategoryOf(err))
}
