package cache

import "fmt"

// Key joins a namespace and its parts with ':'.
func Key(namespace string, parts ...interface{}) string {
	key := namespace
	for _, p := range parts {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}
