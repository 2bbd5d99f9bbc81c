package enrich

// listingInstruction is the fixed extraction instruction sent with every
// batch. Input is a JSON array of post texts; the model must answer with a
// JSON array of the same length and order (optionally wrapped in an object
// under an "output" key).
const listingInstruction = "You are an intelligent text analyzer that extracts key data from posts. " +
	"I will provide a JSON array of post texts from apartment rental groups. " +
	"Analyze each text and return a JSON array of structured objects IN THE SAME ORDER as the input array; " +
	"the output array length MUST equal the input array length. " +
	"For each post extract:\n" +
	"1. user: the full name of the poster.\n" +
	"2. timestamp: when the post was uploaded.\n" +
	"3. post_link: a direct permalink to the post if present.\n" +
	"4. text: the full human-readable post content, cleaned up.\n" +
	"5. price: the rent price or total cost if mentioned.\n" +
	"6. location: the apartment location if mentioned.\n" +
	"7. phone_numbers: an array of phone numbers found in the post.\n" +
	"8. mentions: notable keywords (sublet, rental, roommates and similar).\n" +
	"9. summary: a brief natural-language summary of the offer.\n" +
	"10. is_valid: true only when the post actually offers an apartment.\n" +
	"If a field cannot be found, set it to null or an empty string/array. " +
	"Return ONLY valid JSON: an array with one object per input text, in input order, " +
	"or an object with that array under the key \"output\"."
