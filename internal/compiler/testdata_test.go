package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validSource = `
    syntax = "proto3";
    package test;
    message Test {
        string name = 1;
    }
`

// semanticSource fails with one unknown type at 5:9.
const semanticSource = `
    syntax = "proto3";
    package test;
    message Test {
        strings name = 1;
    }
`

const twoErrorsSource = `
    syntax = "proto3";
    package test;
    message Test {
        strings name = 1;
        fold name2 = 2;
    }
`

const syntaxErrorSource = `
    syntax = "proto3";
    package test;
    message Test2 {
        strings name = 1;
        fold name2 == 2;
    }
`

const baseSource = `syntax = "proto3";
package acme.base;

message Money {
  int64 units = 1;
}
`

const appSource = `syntax = "proto3";
package acme.app;

import "base.proto";
import "google/protobuf/timestamp.proto";

// An order.
message Order {
  // Total price.
  acme.base.Money total = 1;
  google.protobuf.Timestamp at = 2;
}

service Orders {
  // Fetch one.
  rpc Get(Order) returns (Order);
}
`

func writeProto(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
