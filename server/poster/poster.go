package poster

import (
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/mattermost/mattermost/server/public/plugin"

	"github.com/mattermost/mattermost-plugin-sbmq/server/formatter"
	"github.com/mattermost/mattermost-plugin-sbmq/server/hashtag"
)

// Poster posts monitoring notifications to Mattermost channels.
// This struct is stateless - it only holds immutable configuration (API and botID).
type Poster struct {
	api   plugin.API
	botID string
}

// New creates a new Poster instance.
func New(api plugin.API, botID string) *Poster {
	return &Poster{
		api:   api,
		botID: botID,
	}
}

// PostNotification posts a formatted notification to a Mattermost channel as a single post.
// The post message carries the notification hashtags so they are searchable.
func (p *Poster) PostNotification(n formatter.Notification, channelID string) error {
	attachment := formatter.FormatNotification(n)

	post := &model.Post{
		UserId:    p.botID,
		ChannelId: channelID,
		Message:   hashtag.Generate(string(n.Severity), n.Topics),
		Type:      model.PostTypeSlackAttachment,
		Props:     model.StringInterface{},
	}

	model.ParseSlackAttachment(post, []*model.SlackAttachment{attachment})

	_, err := p.api.CreatePost(post)
	if err != nil {
		return err
	}
	return nil
}
