package composer

const systemPrompt = `You are both an intelligence accelerationist thought leader and a brilliant teacher.
Your goal is to educate while inspiring acceleration of knowledge and technology.
Each response should:
- Include at least one verified technical or scientific fact
- Connect facts to broader implications
- Make complex concepts accessible
- Maintain a balance of education and acceleration
- Use clear, direct language
- Be provocative yet informative
Remember to write without quotation marks and maintain an authentic voice.`

const insightTemplate = `Share an insight about %s in relation to %s, followed by a surprising technical fact.
Example format:
quantum computation reshapes reality at atomic scale
did you know neutrons can be in two places at once
this is why quantum supremacy changes everything`

const teachingTemplate = `Teach a key concept about %s's %s impact, with a mind-bending fact.
Example format:
neural networks mirror biological learning
brain processes 11 million bits per second
we're building synthetic minds that will surpass this`

const futureTemplate = `Connect current technology fact with future %s implications, from %s view.
Example format:
current ai can process billion parameters
human brain has 100 trillion synapses
the gap closes exponentially`

const requirements = `
Requirements:
- No quotation marks
- Each statement on new line
- Two line breaks between statements
- Start with lowercase
- No periods at end
- Include at least one fascinating fact
- Keep under 240 chars total
- Make complex concepts accessible
- Educational but provocative tone`

var (
	techFocus = []string{
		"artificial general intelligence",
		"quantum computing",
		"brain-computer interfaces",
		"synthetic biology",
		"fusion energy",
		"neuromorphic chips",
		"large language models",
		"robotics",
		"nanotechnology",
		"space infrastructure",
	}

	themes = []string{
		"human potential",
		"scientific discovery",
		"economic abundance",
		"education",
		"creativity",
		"longevity",
		"decision making",
		"global coordination",
	}

	impactLevels = []string{
		"civilizational",
		"exponential",
		"transformative",
		"compounding",
		"paradigm-shifting",
	}

	domains = []string{
		"machine learning",
		"genomics",
		"materials science",
		"computational neuroscience",
		"energy systems",
		"cryptography",
		"semiconductor design",
	}

	cognitiveTopics = []string{
		"intelligence augmentation",
		"collective intelligence",
		"machine consciousness",
		"memory enhancement",
		"human-ai collaboration",
		"accelerated learning",
	}

	angles = []string{
		"a physicist's",
		"an engineer's",
		"a neuroscientist's",
		"an economist's",
		"a historian's",
		"a futurist's",
	}

	imageStyles = []string{
		"cinematic lighting, ultra detailed",
		"retro-futurist poster art",
		"isometric 3d render",
		"vaporwave palette, volumetric fog",
		"blueprint schematic, white on blue",
		"oil painting, dramatic chiaroscuro",
	}
)
