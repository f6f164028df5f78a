package core

import (
	"testing"

	"workpal/testutil"
)

func TestCoreDoesNotImportAdapters(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AdapterImportForbidden, "the engine must not depend on its transports")
}
