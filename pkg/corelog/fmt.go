package corelog

import "fmt"

func sprint(args []interface{}) string {
	return fmt.Sprint(args...)
}

func sprintf(format string, args []interface{}) string {
	return fmt.Sprintf(format, args...)
}
