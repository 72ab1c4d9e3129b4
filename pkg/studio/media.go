package studio

import "github.com/pion/webrtc/v4"

// MediaSource provides local tracks attached to every new peer connection.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
}

// StaticSource holds one sample-based video and audio track pair
// shared between all peer connections.
type StaticSource struct {
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample
}

func NewStaticSource() (*StaticSource, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "studio-video")
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "studio-audio")
	if err != nil {
		return nil, err
	}
	return &StaticSource{video: video, audio: audio}, nil
}

func (s *StaticSource) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{s.video, s.audio} }

func (s *StaticSource) Video() *webrtc.TrackLocalStaticSample { return s.video }
func (s *StaticSource) Audio() *webrtc.TrackLocalStaticSample { return s.audio }
