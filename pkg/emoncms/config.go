package emoncms

import (
	"fmt"
	"time"

	"github.com/emonview/emonview/pkg/common"
	"github.com/emonview/emonview/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Configured sets up the EmonCMS client and the account it should use based on
// flags. The returned account is filled in once flags are parsed.
func Configured() (*Client, *types.Account) {
	c := NewClient(time.Minute)
	account := &types.Account{}

	baseURL := lflag.String("emoncms-url", "https://emoncms.org", "Base URL of the EmonCMS server")
	apiKey := lflag.RequiredString("emoncms-api-key", "Read API key of the EmonCMS account")
	timeout := lflag.Duration("emoncms-timeout", time.Minute, "Timeout for each EmonCMS request")

	lflag.Do(func() {
		*account = types.NewAccount(*baseURL, *apiKey)
		if err := account.Validate(); err != nil {
			panic(fmt.Sprintf("invalid emoncms account: %v", err))
		}
		c.client = common.HTTPClient(*timeout)
	})

	return c, account
}
