package httpapi

import (
	"testing"

	"workpal/testutil"
)

func TestHTTPAPIUsesEngineOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "handlers reach storage only through the engine")
}
