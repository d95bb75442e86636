package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTokenCacheProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("concurrent callers per origin trigger one fetch", prop.ForAll(
		func(callers int, host string) bool {
			var calls atomic.Int64
			release := make(chan struct{})
			cache := NewTokenCache(func(_ context.Context, origin string) (string, error) {
				calls.Add(1)
				<-release
				return "token:" + origin, nil
			})

			origin := "https://" + host + ".example"
			tokens := make([]string, callers)
			var started sync.WaitGroup
			var finished sync.WaitGroup
			for i := 0; i < callers; i++ {
				started.Add(1)
				finished.Add(1)
				go func(i int) {
					defer finished.Done()
					started.Done()
					tokens[i], _ = cache.GetTokenForURL(context.Background(), origin+"/path")
				}(i)
			}
			started.Wait()
			close(release)
			finished.Wait()

			for _, token := range tokens {
				if token != "token:"+origin {
					return false
				}
			}
			return calls.Load() == 1
		},
		gen.IntRange(2, 16),
		gen.RegexMatch(`^[a-z]{1,12}$`),
	))

	properties.Property("origin ignores path and query", prop.ForAll(
		func(host string, path string) bool {
			return OriginOf("https://"+host+".example/"+path+"?q=1") == "https://"+host+".example"
		},
		gen.RegexMatch(`^[a-z]{1,12}$`),
		gen.RegexMatch(`^[a-z0-9/]{0,20}$`),
	))

	properties.TestingRun(t)
}
