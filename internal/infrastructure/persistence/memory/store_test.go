package memory

import (
	"testing"

	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		s := NewStore()
		return storetest.Backend{Users: s.Users(), Matches: s.Matches(), Messages: s.Messages()}
	})
}
