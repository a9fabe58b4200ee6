package subscription

import "github.com/pkg/browser"

// Navigator opens a page for the user.
type Navigator interface {
	Navigate(url string) error
}

// BrowserNavigator opens pages in the user's default browser.
type BrowserNavigator struct{}

func (BrowserNavigator) Navigate(url string) error {
	return browser.OpenURL(url)
}
