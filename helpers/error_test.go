package helpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	one := fmt.Errorf("bus %d%%", 100)
	assert.Equal(t, one, FoldErrors([]error{nil, one}))
	assert.EqualError(t, FoldErrors([]error{one, nil, fmt.Errorf("config")}), "bus 100%\nconfig")
}
