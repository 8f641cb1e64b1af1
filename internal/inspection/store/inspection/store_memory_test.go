package inspection

import (
	"testing"
)

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) store { return NewInMemory() })
}
