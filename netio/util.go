package netio

import (
	"fmt"
	"strconv"
)

func itoa(n int) string { return strconv.Itoa(n) }

// errTimeout reports a failed active-connect dial timeout.
func errTimeout(addr string) error {
	return fmt.Errorf("Timeout in connection to host %s", addr)
}
