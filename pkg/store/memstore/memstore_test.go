package memstore_test

import (
	"testing"

	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/store/memstore"
	"github.com/agentlensio/agentlens/pkg/store/storetest"
)

func TestMemstoreConformance(t *testing.T) {
	storetest.RunConformance(t, func(t *testing.T) store.Store {
		return memstore.New()
	})
}
