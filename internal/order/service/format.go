package service

import "strings"

func pluralize(word string, count int64) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
