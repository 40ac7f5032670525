package store_test

import (
	"testing"

	"github.com/hadlocna/PaperDrop/internal/store"
	"github.com/hadlocna/PaperDrop/internal/store/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}
