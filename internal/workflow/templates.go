package workflow

// Node ids of the image template.
const (
	ImageNodeSampler    = "3"
	ImageNodeCheckpoint = "4"
	ImageNodeLatent     = "5"
	ImageNodePositive   = "6"
	ImageNodeNegative   = "7"
	ImageNodeDecode     = "8"
	ImageNodeSave       = "9"
	ImageNodeLoRA       = "10"
)

// Node ids of the video template.
const (
	VideoNodeUNetHigh    = "1"
	VideoNodeUNetLow     = "2"
	VideoNodeCLIP        = "3"
	VideoNodeVAE         = "4"
	VideoNodeLoRAHigh    = "5"
	VideoNodeLoRALow     = "6"
	VideoNodePositive    = "7"
	VideoNodeNegative    = "8"
	VideoNodeLatent      = "9"
	VideoNodeSamplerHigh = "10"
	VideoNodeSamplerLow  = "11"
	VideoNodeDecode      = "12"
	VideoNodeCombine     = "13"
)

// Fixed model files and sampler identifiers.
const (
	ImageCheckpoint   = "juggernautXL_v9Rdphoto2Lightning.safetensors"
	VideoUNetHigh     = "wan2.2_t2v_high_noise_14B_fp8_scaled.safetensors"
	VideoUNetLow      = "wan2.2_t2v_low_noise_14B_fp8_scaled.safetensors"
	VideoTextEncoder  = "umt5_xxl_fp8_e4m3fn_scaled.safetensors"
	VideoVAE          = "wan_2.1_vae.safetensors"
	SamplerName       = "euler"
	SchedulerName     = "normal"
	VideoSamplerName  = "euler"
	VideoScheduler    = "simple"
	VideoFrameRate    = 16
	ImageFilePrefix   = "influencer/image"
	VideoFilePrefix   = "influencer/video"
	styleLoRAStrength = 0.8
	videoLoRAStrength = 1.0
)

// Output nodes the resolver checks, in order, before scanning every output.
var (
	ImageOutputNodes = []string{ImageNodeSave}
	VideoOutputNodes = []string{VideoNodeCombine}
)

// Prototypes are built once and only ever cloned.
var (
	imagePrototype = newImageTemplate()
	videoPrototype = newVideoTemplate()
)

func newImageTemplate() *Graph {
	g := NewGraph()
	g.Add(ImageNodeCheckpoint, &Node{
		ClassType: "CheckpointLoaderSimple",
		Title:     "Load Checkpoint",
		Inputs: map[string]Input{
			"ckpt_name": Lit(ImageCheckpoint),
		},
	})
	g.Add(ImageNodeLoRA, &Node{
		ClassType: "LoraLoader",
		Title:     "Style LoRA",
		Inputs: map[string]Input{
			"model":          Ref(ImageNodeCheckpoint, 0),
			"clip":           Ref(ImageNodeCheckpoint, 1),
			"lora_name":      Lit(""),
			"strength_model": Lit(styleLoRAStrength),
			"strength_clip":  Lit(styleLoRAStrength),
		},
	})
	g.Add(ImageNodePositive, &Node{
		ClassType: "CLIPTextEncode",
		Title:     "Positive Prompt",
		Inputs: map[string]Input{
			"text": Lit(""),
			"clip": Ref(ImageNodeLoRA, 1),
		},
	})
	g.Add(ImageNodeNegative, &Node{
		ClassType: "CLIPTextEncode",
		Title:     "Negative Prompt",
		Inputs: map[string]Input{
			"text": Lit(""),
			"clip": Ref(ImageNodeLoRA, 1),
		},
	})
	g.Add(ImageNodeLatent, &Node{
		ClassType: "EmptyLatentImage",
		Title:     "Resolution",
		Inputs: map[string]Input{
			"width":      Lit(1024),
			"height":     Lit(1024),
			"batch_size": Lit(1),
		},
	})
	g.Add(ImageNodeSampler, &Node{
		ClassType: "KSampler",
		Title:     "Sampler",
		Inputs: map[string]Input{
			"model":        Ref(ImageNodeLoRA, 0),
			"positive":     Ref(ImageNodePositive, 0),
			"negative":     Ref(ImageNodeNegative, 0),
			"latent_image": Ref(ImageNodeLatent, 0),
			"seed":         Lit(int64(0)),
			"steps":        Lit(25),
			"cfg":          Lit(7.0),
			"sampler_name": Lit(SamplerName),
			"scheduler":    Lit(SchedulerName),
			"denoise":      Lit(1.0),
		},
	})
	g.Add(ImageNodeDecode, &Node{
		ClassType: "VAEDecode",
		Title:     "VAE Decode",
		Inputs: map[string]Input{
			"samples": Ref(ImageNodeSampler, 0),
			"vae":     Ref(ImageNodeCheckpoint, 2),
		},
	})
	g.Add(ImageNodeSave, &Node{
		ClassType: "SaveImage",
		Title:     "Save Image",
		Inputs: map[string]Input{
			"images":          Ref(ImageNodeDecode, 0),
			"filename_prefix": Lit(ImageFilePrefix),
		},
	})
	return g
}

func newVideoTemplate() *Graph {
	g := NewGraph()
	g.Add(VideoNodeUNetHigh, &Node{
		ClassType: "UNETLoader",
		Title:     "High Noise Model",
		Inputs: map[string]Input{
			"unet_name":    Lit(VideoUNetHigh),
			"weight_dtype": Lit("default"),
		},
	})
	g.Add(VideoNodeUNetLow, &Node{
		ClassType: "UNETLoader",
		Title:     "Low Noise Model",
		Inputs: map[string]Input{
			"unet_name":    Lit(VideoUNetLow),
			"weight_dtype": Lit("default"),
		},
	})
	g.Add(VideoNodeCLIP, &Node{
		ClassType: "CLIPLoader",
		Title:     "Text Encoder",
		Inputs: map[string]Input{
			"clip_name": Lit(VideoTextEncoder),
			"type":      Lit("wan"),
			"device":    Lit("default"),
		},
	})
	g.Add(VideoNodeVAE, &Node{
		ClassType: "VAELoader",
		Title:     "VAE",
		Inputs: map[string]Input{
			"vae_name": Lit(VideoVAE),
		},
	})
	g.Add(VideoNodeLoRAHigh, &Node{
		ClassType: "LoraLoaderModelOnly",
		Title:     "Persona LoRA (high noise)",
		Inputs: map[string]Input{
			"model":          Ref(VideoNodeUNetHigh, 0),
			"lora_name":      Lit(""),
			"strength_model": Lit(videoLoRAStrength),
		},
	})
	g.Add(VideoNodeLoRALow, &Node{
		ClassType: "LoraLoaderModelOnly",
		Title:     "Persona LoRA (low noise)",
		Inputs: map[string]Input{
			"model":          Ref(VideoNodeUNetLow, 0),
			"lora_name":      Lit(""),
			"strength_model": Lit(videoLoRAStrength),
		},
	})
	g.Add(VideoNodePositive, &Node{
		ClassType: "CLIPTextEncode",
		Title:     "Positive Prompt",
		Inputs: map[string]Input{
			"text": Lit(""),
			"clip": Ref(VideoNodeCLIP, 0),
		},
	})
	g.Add(VideoNodeNegative, &Node{
		ClassType: "CLIPTextEncode",
		Title:     "Negative Prompt",
		Inputs: map[string]Input{
			"text": Lit(""),
			"clip": Ref(VideoNodeCLIP, 0),
		},
	})
	g.Add(VideoNodeLatent, &Node{
		ClassType: "EmptyHunyuanLatentVideo",
		Title:     "Resolution / Duration",
		Inputs: map[string]Input{
			"width":      Lit(832),
			"height":     Lit(480),
			"length":     Lit(81),
			"batch_size": Lit(1),
		},
	})
	g.Add(VideoNodeSamplerHigh, &Node{
		ClassType: "KSamplerAdvanced",
		Title:     "Sampler (high noise)",
		Inputs: map[string]Input{
			"model":                      Ref(VideoNodeLoRAHigh, 0),
			"positive":                   Ref(VideoNodePositive, 0),
			"negative":                   Ref(VideoNodeNegative, 0),
			"latent_image":               Ref(VideoNodeLatent, 0),
			"add_noise":                  Lit("enable"),
			"noise_seed":                 Lit(int64(0)),
			"steps":                      Lit(20),
			"cfg":                        Lit(3.5),
			"sampler_name":               Lit(VideoSamplerName),
			"scheduler":                  Lit(VideoScheduler),
			"start_at_step":              Lit(0),
			"end_at_step":                Lit(10),
			"return_with_leftover_noise": Lit("enable"),
		},
	})
	g.Add(VideoNodeSamplerLow, &Node{
		ClassType: "KSamplerAdvanced",
		Title:     "Sampler (low noise)",
		Inputs: map[string]Input{
			"model":                      Ref(VideoNodeLoRALow, 0),
			"positive":                   Ref(VideoNodePositive, 0),
			"negative":                   Ref(VideoNodeNegative, 0),
			"latent_image":               Ref(VideoNodeSamplerHigh, 0),
			"add_noise":                  Lit("disable"),
			"noise_seed":                 Lit(int64(1)),
			"steps":                      Lit(20),
			"cfg":                        Lit(3.5),
			"sampler_name":               Lit(VideoSamplerName),
			"scheduler":                  Lit(VideoScheduler),
			"start_at_step":              Lit(10),
			"end_at_step":                Lit(10000),
			"return_with_leftover_noise": Lit("disable"),
		},
	})
	// Decode inputs are wired by the builder. The backend does not auto-wire
	// inputs for programmatically submitted graphs.
	g.Add(VideoNodeDecode, &Node{
		ClassType: "VAEDecode",
		Title:     "VAE Decode",
	})
	g.Add(VideoNodeCombine, &Node{
		ClassType: "VHS_VideoCombine",
		Title:     "Video Combine",
		Inputs: map[string]Input{
			"images":          Ref(VideoNodeDecode, 0),
			"frame_rate":      Lit(VideoFrameRate),
			"loop_count":      Lit(0),
			"filename_prefix": Lit(VideoFilePrefix),
			"format":          Lit("video/h264-mp4"),
			"pix_fmt":         Lit("yuv420p"),
			"crf":             Lit(19),
			"pingpong":        Lit(false),
			"save_output":     Lit(true),
		},
	})
	return g
}
