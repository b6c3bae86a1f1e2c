package urlqueue

import (
	"fmt"
	"net/url"
)

// RobotsURL returns the robots.txt location for the host of urlStr and the
// escaped path to test against it.
func RobotsURL(urlStr string) (robotsURL, path string, err error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("no host in %q", urlStr)
	}
	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host), path, nil
}
