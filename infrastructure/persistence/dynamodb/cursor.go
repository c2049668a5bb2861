package dynamodb

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	pkgerrors "patchshare-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Cursors are opaque to clients. Query-backed listings encode the
// LastEvaluatedKey; scan-backed listings encode an offset into the sorted
// result set. All key attributes in this table are strings.

func encodeKeyCursor(key map[string]types.AttributeValue) string {
	if len(key) == 0 {
		return ""
	}
	flat := make(map[string]string, len(key))
	for name, attr := range key {
		if s, ok := attr.(*types.AttributeValueMemberS); ok {
			flat[name] = s.Value
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeKeyCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, pkgerrors.NewValidationError("malformed cursor")
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, pkgerrors.NewValidationError("malformed cursor")
	}
	key := make(map[string]types.AttributeValue, len(flat))
	for name, value := range flat {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}

func encodeOffsetCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeOffsetCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, pkgerrors.NewValidationError("malformed cursor")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, pkgerrors.NewValidationError("malformed cursor")
	}
	return offset, nil
}
