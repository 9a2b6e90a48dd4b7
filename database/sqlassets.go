package sqlassets

import _ "embed"

//go:embed schema/platform/deployments.sql
var DeploymentsSQL string
