package kick

import "github.com/skratchdot/open-golang/open"

// openBrowser launches url in the user's default browser. Failure is
// non-fatal: the authorization URL is always surfaced for manual opening.
func openBrowser(url string) error {
	return open.Run(url)
}
