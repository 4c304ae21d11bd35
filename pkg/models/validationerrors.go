// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
)

var (
	ValidationErrorEmptyName      = errors.New("match name must not be blank")
	ValidationErrorEmptyUserName  = errors.New("user name must not be blank")
	ValidationErrorNoGame         = errors.New("match has no game definition")
	ValidationErrorNumberOfHands  = errors.New("number of hands must be positive")
	ValidationErrorSeatOutOfRange = errors.New("seat is outside the table")
	ValidationErrorPlayerCount    = errors.New("number of players does not match the game")
	ValidationErrorHumanSeat      = errors.New("the user's seat must be a proxied seat")
)

var validationErrorCodeMap = map[error]int{
	ValidationErrorEmptyName:      510201,
	ValidationErrorEmptyUserName:  510202,
	ValidationErrorNoGame:         510203,
	ValidationErrorNumberOfHands:  510204,
	ValidationErrorSeatOutOfRange: 510205,
	ValidationErrorPlayerCount:    510206,
	ValidationErrorHumanSeat:      510207,
}

// ValidationErrorCode returns a code for the error.
// It returns 20002 if the error is not registered in the map.
func ValidationErrorCode(err error) int {
	for known, code := range validationErrorCodeMap {
		if errors.Is(err, known) {
			return code
		}
	}
	return 20002
}
