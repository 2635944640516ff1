package notify

import (
	"fmt"

	"github.com/oggyb/muzz-engagement/internal/push"
)

// Event kinds.
const (
	KindLike     = "like"
	KindBigHeart = "big_heart"
)

var kinds = map[string]string{
	KindLike:     "New like",
	KindBigHeart: "New big heart",
}

// KnownKind reports whether kind has a message template.
func KnownKind(kind string) bool {
	_, ok := kinds[kind]
	return ok
}

// Text renders the push body for total events of kind from name.
func Text(kind, name string, total int64) string {
	switch kind {
	case KindBigHeart:
		if total > 1 {
			return fmt.Sprintf("%s sent you %d big hearts", name, total)
		}
		return fmt.Sprintf("%s sent you a big heart", name)
	default:
		if total > 1 {
			return fmt.Sprintf("%s liked %d of your posts", name, total)
		}
		return fmt.Sprintf("%s liked your post", name)
	}
}

func buildMessage(ev LikeEvent, name string, total int64) push.Message {
	return push.Message{
		ToUser: ev.ToUser,
		Kind:   ev.Kind,
		Title:  kinds[ev.Kind],
		Body:   Text(ev.Kind, name, total),
		Count:  total,
		Data:   map[string]string{"fromUser": fmt.Sprint(ev.FromUser)},
	}
}
