package bot

const helpPlain = `This is tg2mx_bot, a bot that can import sticker packs from
telegram and migrate maunium's sticker packs to MSC2545 room
sticker packs.

The following commands are available:

!help  --  Show this help message

!import <pack>  --  Import a telegram sticker pack.

!migrate <pack>  --  Migrate a maunium sticker pack.
`

const helpHTML = `<p>This is tg2mx_bot, a bot that can import sticker packs from
telegram and migrate maunium's sticker packs to MSC2545 room
sticker packs.</p>

<p>The following commands are available:</p>

<ul>
  <li><code>!help</code>  --  Show this help message</li>
  <li><code>!import</code> &lt;pack&gt;  --  Import a telegram
      sticker pack.</li>
  <li><code>!migrate</code> &lt;pack&gt;  --  Migrate a maunium
      sticker pack.</li>
</ul>
`

const unknownCommandReply = "Unknown command. Use !help to see a list of all commands"
