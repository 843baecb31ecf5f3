package connector_test

import (
	"fmt"

	"github.com/ajitpratap0/nebula-sql/pkg/connector/registry"

	_ "github.com/ajitpratap0/nebula-sql/pkg/connector/destinations"
	_ "github.com/ajitpratap0/nebula-sql/pkg/connector/sources"
)

func Example() {
	fmt.Println(registry.ListSources())
	fmt.Println(registry.ListDestinations())

	info, err := registry.GetConnectorInfo("sql_insert_or_update")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(info.Type, info.Capabilities[1])
	// Output:
	// [sql_select]
	// [sql_insert_or_update]
	// destination upsert
}
