package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Keys for the units of work Telegram may deliver more than once. Numeric ids
// stay readable in Redis; opaque callback ids are hashed to a fixed length.

func UpdateKey(updateID int) string {
	return "update:" + strconv.Itoa(updateID)
}

func CallbackKey(callbackID string) string {
	sum := sha256.Sum256([]byte(callbackID))
	return "callback:" + hex.EncodeToString(sum[:16])
}

func MessageKey(chatID int64, messageID int) string {
	return "message:" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}
