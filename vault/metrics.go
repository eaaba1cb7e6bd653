package vault

import (
	"github.com/vestvault/go-vestvault/metrics"
)

const namespace = "vault"

var withdrawnAmount = metrics.NewCounter(
	"withdrawn_amount",
	namespace,
	"Cumulative amount withdrawn from vaults",
	[]string{"asset"},
)
