package riva

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// The Riva ASR wire schema, restricted to the fields the bridge sends and
// reads. Field numbers follow riva/proto/riva_asr.proto.
const (
	rivaPackage      = "nvidia.riva.asr"
	serviceName      = rivaPackage + ".RivaSpeechRecognition"
	streamMethodName = "StreamingRecognize"
	streamMethod     = "/" + serviceName + "/" + streamMethodName

	encodingLinearPCM = 1
)

type schema struct {
	request       protoreflect.MessageDescriptor
	streamConfig  protoreflect.MessageDescriptor
	config        protoreflect.MessageDescriptor
	speechContext protoreflect.MessageDescriptor
	response      protoreflect.MessageDescriptor
	result        protoreflect.MessageDescriptor
	alternative   protoreflect.MessageDescriptor
}

var asr = mustSchema()

func mustSchema() schema {
	s, err := buildSchema()
	if err != nil {
		panic(fmt.Sprintf("riva: build asr schema: %v", err))
	}
	return s
}

func buildSchema() (schema, error) {
	fd, err := protodesc.NewFile(asrFile(), nil)
	if err != nil {
		return schema{}, err
	}
	msgs := fd.Messages()
	return schema{
		request:       msgs.ByName("StreamingRecognizeRequest"),
		streamConfig:  msgs.ByName("StreamingRecognitionConfig"),
		config:        msgs.ByName("RecognitionConfig"),
		speechContext: msgs.ByName("SpeechContext"),
		response:      msgs.ByName("StreamingRecognizeResponse"),
		result:        msgs.ByName("StreamingRecognitionResult"),
		alternative:   msgs.ByName("SpeechRecognitionAlternative"),
	}, nil
}

func asrFile() *descriptorpb.FileDescriptorProto {
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED

	scalar := func(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(number),
			Label:  optional.Enum(),
			Type:   typ.Enum(),
		}
	}
	message := func(name string, number int32, label descriptorpb.FieldDescriptorProto_Label, typeName string) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			Number:   proto.Int32(number),
			Label:    label.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
			TypeName: proto.String("." + rivaPackage + "." + typeName),
		}
	}

	encoding := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String("encoding"),
		Number:   proto.Int32(1),
		Label:    optional.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum(),
		TypeName: proto.String("." + rivaPackage + ".AudioEncoding"),
	}

	streamingConfig := message("streaming_config", 1, optional, "StreamingRecognitionConfig")
	streamingConfig.OneofIndex = proto.Int32(0)
	audioContent := scalar("audio_content", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES)
	audioContent.OneofIndex = proto.Int32(0)

	phrases := scalar("phrases", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING)
	phrases.Label = repeated.Enum()

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("riva/proto/riva_asr.proto"),
		Package: proto.String(rivaPackage),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("AudioEncoding"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("ENCODING_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("LINEAR_PCM"), Number: proto.Int32(encodingLinearPCM)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("SpeechContext"),
				Field: []*descriptorpb.FieldDescriptorProto{
					phrases,
					scalar("boost", 4, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
				},
			},
			{
				Name: proto.String("RecognitionConfig"),
				Field: []*descriptorpb.FieldDescriptorProto{
					encoding,
					scalar("sample_rate_hertz", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("language_code", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("max_alternatives", 4, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					message("speech_contexts", 6, repeated, "SpeechContext"),
					scalar("audio_channel_count", 7, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("enable_automatic_punctuation", 11, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalar("model", 13, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("StreamingRecognitionConfig"),
				Field: []*descriptorpb.FieldDescriptorProto{
					message("config", 1, optional, "RecognitionConfig"),
					scalar("interim_results", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				},
			},
			{
				Name:      proto.String("StreamingRecognizeRequest"),
				Field:     []*descriptorpb.FieldDescriptorProto{streamingConfig, audioContent},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("streaming_request")}},
			},
			{
				Name: proto.String("SpeechRecognitionAlternative"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("transcript", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("confidence", 2, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
				},
			},
			{
				Name: proto.String("StreamingRecognitionResult"),
				Field: []*descriptorpb.FieldDescriptorProto{
					message("alternatives", 1, repeated, "SpeechRecognitionAlternative"),
					scalar("is_final", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalar("stability", 3, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
				},
			},
			{
				Name: proto.String("StreamingRecognizeResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					message("results", 1, repeated, "StreamingRecognitionResult"),
				},
			},
		},
	}
}

func setField(m *dynamicpb.Message, name string, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(protoreflect.Name(name)), v)
}

func getField(m protoreflect.Message, name string) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(protoreflect.Name(name)))
}

// configRequest builds the first message of a stream.
func configRequest(cfg StreamConfig) *dynamicpb.Message {
	rc := dynamicpb.NewMessage(asr.config)
	setField(rc, "encoding", protoreflect.ValueOfEnum(encodingLinearPCM))
	setField(rc, "sample_rate_hertz", protoreflect.ValueOfInt32(int32(cfg.SampleRate)))
	setField(rc, "language_code", protoreflect.ValueOfString(cfg.LanguageCode))
	setField(rc, "max_alternatives", protoreflect.ValueOfInt32(1))
	setField(rc, "audio_channel_count", protoreflect.ValueOfInt32(1))
	setField(rc, "enable_automatic_punctuation", protoreflect.ValueOfBool(cfg.AutomaticPunctuation))
	if cfg.Model != "" {
		setField(rc, "model", protoreflect.ValueOfString(cfg.Model))
	}

	contexts := rc.Mutable(asr.config.Fields().ByName("speech_contexts")).List()
	for _, phrase := range cfg.SpeechPhrases {
		sc := dynamicpb.NewMessage(asr.speechContext)
		sc.Mutable(asr.speechContext.Fields().ByName("phrases")).List().Append(protoreflect.ValueOfString(phrase.Phrase))
		setField(sc, "boost", protoreflect.ValueOfFloat32(phrase.Boost))
		contexts.Append(protoreflect.ValueOfMessage(sc))
	}

	sc := dynamicpb.NewMessage(asr.streamConfig)
	setField(sc, "config", protoreflect.ValueOfMessage(rc))
	setField(sc, "interim_results", protoreflect.ValueOfBool(cfg.InterimResults))

	req := dynamicpb.NewMessage(asr.request)
	setField(req, "streaming_config", protoreflect.ValueOfMessage(sc))
	return req
}

func audioRequest(chunk []byte) *dynamicpb.Message {
	req := dynamicpb.NewMessage(asr.request)
	setField(req, "audio_content", protoreflect.ValueOfBytes(chunk))
	return req
}

// Transcript is one recognition hypothesis from the server.
type Transcript struct {
	Text       string
	Confidence float32
	Final      bool
	Stability  float32
}

// transcripts extracts the top alternative of every result in resp.
func transcripts(resp protoreflect.Message) []Transcript {
	results := getField(resp, "results").List()
	out := make([]Transcript, 0, results.Len())
	for i := 0; i < results.Len(); i++ {
		result := results.Get(i).Message()
		alternatives := getField(result, "alternatives").List()
		if alternatives.Len() == 0 {
			continue
		}
		top := alternatives.Get(0).Message()
		text := cleanSegment(getField(top, "transcript").String())
		if text == "" {
			continue
		}
		out = append(out, Transcript{
			Text:       text,
			Confidence: float32(getField(top, "confidence").Float()),
			Final:      getField(result, "is_final").Bool(),
			Stability:  float32(getField(result, "stability").Float()),
		})
	}
	return out
}
